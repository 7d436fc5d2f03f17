package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrEngine    = "engine"
	attrOperation = "operation"
	attrStatus    = "status"
	attrResult    = "result"
	attrTool      = "tool"
	attrModel     = "model"
	attrLabel     = "label"
	attrProvider  = "provider"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// Engine metrics
	engineOperationsTotal   metric.Int64Counter
	engineOperationDuration metric.Float64Histogram

	// NLU capability metrics
	nluCallsTotal   metric.Int64Counter
	nluCallDuration metric.Float64Histogram

	// Classification outcome metrics
	classificationsTotal metric.Int64Counter

	// Account link flow metrics
	linkFlowTotal metric.Int64Counter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Session metrics
	activeSessions metric.Int64UpDownCounter

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// Engine Metrics
	m.engineOperationsTotal, err = meter.Int64Counter(
		"engine_operations_total",
		metric.WithDescription("Total number of engine operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine_operations_total counter: %w", err)
	}

	m.engineOperationDuration, err = meter.Float64Histogram(
		"engine_operation_duration_seconds",
		metric.WithDescription("Engine operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine_operation_duration_seconds histogram: %w", err)
	}

	// NLU Capability Metrics
	m.nluCallsTotal, err = meter.Int64Counter(
		"nlu_calls_total",
		metric.WithDescription("Total number of NLU capability calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create nlu_calls_total counter: %w", err)
	}

	m.nluCallDuration, err = meter.Float64Histogram(
		"nlu_call_duration_seconds",
		metric.WithDescription("NLU capability call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create nlu_call_duration_seconds histogram: %w", err)
	}

	// Classification Outcome Metrics
	m.classificationsTotal, err = meter.Int64Counter(
		"classifications_total",
		metric.WithDescription("Total number of stored classification labels"),
		metric.WithUnit("{classification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifications_total counter: %w", err)
	}

	// Account Link Flow Metrics
	m.linkFlowTotal, err = meter.Int64Counter(
		"link_flow_total",
		metric.WithDescription("Total number of account link flow outcomes"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create link_flow_total counter: %w", err)
	}

	// MCP Tool Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	// Session Metrics
	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of active MCP sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	return m, nil
}

// RecordEngineOperation records one engine operation with engine name,
// operation, status, and duration.
//
// Parameters:
//   - engine: Engine name (classify, extract, sortcmd)
//   - operation: Operation type (classify, extract, compile, etc.)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordEngineOperation(ctx context.Context, engine, operation, status string, duration time.Duration) {
	if m.engineOperationsTotal == nil || m.engineOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrEngine, engine),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.engineOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.engineOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordNLUCall records one NLU capability call with model, status, and duration.
func (m *Metrics) RecordNLUCall(ctx context.Context, model, status string, duration time.Duration) {
	if m.nluCallsTotal == nil || m.nluCallDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrModel, model),
		attribute.String(attrStatus, status),
	}

	m.nluCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.nluCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordClassification records one stored classification label. The
// label set is closed and small, so it is safe as a metric attribute.
func (m *Metrics) RecordClassification(ctx context.Context, label string) {
	if m.classificationsTotal == nil {
		return // Instrumentation not initialized
	}

	m.classificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrLabel, label),
	))
}

// RecordLinkFlow records one account link flow outcome.
// Result should be one of: "success", "expired", "consumed", "invalid"
func (m *Metrics) RecordLinkFlow(ctx context.Context, provider, result string) {
	if m.linkFlowTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrProvider, provider),
		attribute.String(attrResult, result),
	}

	m.linkFlowTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "inbox_classify", "accounts_list")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m.activeSessions == nil {
		return // Instrumentation not initialized
	}

	m.activeSessions.Add(ctx, -1)
}

// RecordToolInvocationWithTenant records an MCP tool invocation with an
// anonymized tenant attribute. The tenant attribute is only included
// when detailedLabels is enabled.
func (m *Metrics) RecordToolInvocationWithTenant(ctx context.Context, toolName, status, tenantHash string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && tenantHash != "" {
		attrs = append(attrs, attribute.String("tenant_hash", tenantHash))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
