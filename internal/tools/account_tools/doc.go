// Package account_tools provides MCP tools for the account linking
// flow: issuing single-use link tokens, completing a link with the
// provider identity, and managing which linked account is active.
package account_tools
