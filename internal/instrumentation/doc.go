// Package instrumentation provides comprehensive OpenTelemetry instrumentation
// for the inboxpilot MCP server.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for engine operations, NLU calls, and account link flows
//   - Distributed tracing for request flows and capability calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Engine Metrics:
//   - engine_operations_total: Counter of engine operations by engine, operation, status
//   - engine_operation_duration_seconds: Histogram of engine operation durations
//   - classifications_total: Counter of stored classification labels by label
//
// NLU Capability Metrics:
//   - nlu_calls_total: Counter of NLU capability calls by model and status
//   - nlu_call_duration_seconds: Histogram of NLU call durations
//
// Account Link Metrics:
//   - link_flow_total: Counter of link flow outcomes by provider and result
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//   - active_sessions: Gauge of active MCP sessions
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - MCP tool invocations (tool.<name>)
//   - Engine operations (engine.<engine>.<operation>)
//   - NLU capability calls (nlu.complete)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: inboxpilot)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "inboxpilot",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an engine operation
//	recorder.RecordEngineOperation(ctx, "classify", "classify", "success", time.Since(start))
//
//	// Record an MCP tool invocation
//	recorder.RecordToolInvocation(ctx, "inbox_classify", "success", time.Since(start))
package instrumentation
