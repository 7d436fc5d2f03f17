// Package common provides shared utilities for MCP tool implementations:
// argument extraction, tenant-aware error surfacing and the instrumented
// handler wrapper every tool package registers through.
package common
