package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with sender identifiers.

// ExtractSenderDomain extracts the domain part from an email address.
// This reduces cardinality by using the domain instead of the full address.
//
// Example:
//
//	ExtractSenderDomain("jane@example.com")  // "example.com"
//	ExtractSenderDomain("brand@agency.io")   // "agency.io"
//	ExtractSenderDomain("invalid")           // "unknown"
//	ExtractSenderDomain("")                  // "unknown"
func ExtractSenderDomain(address string) string {
	if address == "" {
		return "unknown"
	}

	parts := strings.Split(address, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Common operation types for engine metrics.
// Status, link result, and engine constants are defined in config.go.
const (
	OperationClassify = "classify"
	OperationExtract  = "extract"
	OperationCompile  = "compile"
	OperationList     = "list"
	OperationMarkRead = "mark_read"
	OperationLink     = "link"
	OperationUnlink   = "unlink"
)
