package sort_tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/inboxpilot/inboxpilot/internal/instrumentation"
	"github.com/inboxpilot/inboxpilot/internal/server"
	"github.com/inboxpilot/inboxpilot/internal/tools/common"
)

// RegisterSortTools registers sort-command tools with the MCP server.
func RegisterSortTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	compileTool := mcp.NewTool("sort_compile_command",
		mcp.WithDescription("Compile a natural-language sorting command (e.g. \"newest unread first\") into a structured sort rule. Commands outside the supported sort vocabulary are rejected."),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The natural-language sorting command"),
		),
	)
	s.AddTool(compileTool, common.InstrumentedEngineToolHandler(
		"sort_compile_command", instrumentation.EngineSortCmd, instrumentation.OperationCompile, sc,
		compileCommandHandler(sc)))

	return nil
}

func compileCommandHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		command, ok := args["command"].(string)
		if !ok {
			return mcp.NewToolResultError("command is required"), nil
		}

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		rule, err := sc.Compiler().CompileForTenant(ctx, ns, command)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		result, _ := json.MarshalIndent(rule, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}
}
