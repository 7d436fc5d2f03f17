// Package resources provides read-only MCP resources: the fixed
// vocabularies (classification labels, sort fields and orders) clients
// need to interpret tool output and build UIs.
package resources
