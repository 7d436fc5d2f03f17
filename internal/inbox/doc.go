// Package inbox defines the email document model shared by the
// classification and extraction engines, the command compiler, and the
// MCP tool surface.
//
// Emails are created by an external ingestion collaborator; this package
// only reads them and applies field-scoped state updates (read flag).
package inbox
