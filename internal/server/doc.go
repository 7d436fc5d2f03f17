// Package server provides the MCP server context, session tracking,
// and the operational HTTP endpoints for the inboxpilot application.
//
// ServerContext bundles the document store, the tenant resolver and the
// assistant engines so tool handlers share one set of dependencies. Its
// Namespace method is the single path from an external identity to a
// tenant-scoped store handle.
//
// SessionManager maps Bearer tokens to external identities for the HTTP
// transport, letting several users share one server instance. Bound
// sessions feed the active-session gauge when instrumentation is
// configured.
//
// MetricsServer serves Prometheus metrics on a dedicated port, and
// HealthChecker provides the liveness and readiness probes. Readiness
// includes a store round trip so a lost backend takes the instance out
// of rotation.
package server
