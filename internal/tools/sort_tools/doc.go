// Package sort_tools provides the MCP tool that turns natural-language
// sorting commands into structured sort rules via the command compiler.
package sort_tools
