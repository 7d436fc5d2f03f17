// Package logging provides structured logging utilities for inboxpilot.
//
// This package centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (tenant identifier hashing)
//   - Consistent attribute naming across the codebase
//   - Logger adapter interface for flexibility
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "classify")
//	logger.Info("email classified",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("tenant operation",
//	    logging.Tenant(canonicalID))
//
// # Security Considerations
//
//   - Tenant identifiers are hashed to prevent PII leakage while
//     allowing correlation
//   - Tokens are never logged directly
package logging
