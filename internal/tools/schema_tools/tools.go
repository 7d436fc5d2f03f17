package schema_tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/inboxpilot/inboxpilot/internal/schema"
	"github.com/inboxpilot/inboxpilot/internal/server"
	"github.com/inboxpilot/inboxpilot/internal/tools/common"
)

// RegisterSchemaTools registers payload validation tools with the MCP
// server. Validation is tenant-free: payloads are checked before any
// engine or store operation would accept them.
func RegisterSchemaTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	register(s, sc, "schema_validate_event",
		"Validate a calendar event payload. Returns the normalized payload or the validation failure.",
		func(payload any) (any, error) { return schema.ValidateEvent(payload) })

	register(s, sc, "schema_validate_event_update",
		"Validate a partial calendar event update. Unknown fields are rejected.",
		func(payload any) (any, error) { return schema.ValidateEventUpdate(payload) })

	register(s, sc, "schema_validate_task",
		"Validate a task payload. Returns the normalized payload or the validation failure.",
		func(payload any) (any, error) { return schema.ValidateTask(payload) })

	register(s, sc, "schema_validate_task_update",
		"Validate a partial task update. Unknown fields are rejected.",
		func(payload any) (any, error) { return schema.ValidateTaskUpdate(payload) })

	register(s, sc, "schema_validate_email_ref",
		"Validate an email reference payload ({\"emailId\": ...}).",
		func(payload any) (any, error) { return schema.ValidateEmailRef(payload) })

	register(s, sc, "schema_validate_sort_rule",
		"Validate a sort rule payload against the supported sort fields and orders.",
		func(payload any) (any, error) { return schema.ValidateSortRule(payload) })

	return nil
}

func register(s *mcpserver.MCPServer, sc *server.ServerContext, name, description string, validateFn func(payload any) (any, error)) {
	tool := mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithObject("payload",
			mcp.Required(),
			mcp.Description("The payload object to validate"),
		),
	)
	s.AddTool(tool, common.InstrumentedToolHandler(name, sc, validateHandler(validateFn)))
}

func validateHandler(validateFn func(payload any) (any, error)) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		payload, ok := args["payload"]
		if !ok {
			return mcp.NewToolResultError("payload is required"), nil
		}

		normalized, err := validateFn(payload)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		result, _ := json.MarshalIndent(normalized, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}
}
