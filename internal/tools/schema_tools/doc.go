// Package schema_tools exposes the payload validators as MCP tools so
// callers can check event, task and sort-rule payloads before handing
// them to an engine.
package schema_tools
