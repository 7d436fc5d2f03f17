// Package inbox_tools provides MCP tools for working with a user's
// email documents: classification, sponsorship extraction, recent
// listing and read-state updates. Every tool resolves the caller's
// external identity to a tenant namespace before touching any data.
package inbox_tools
