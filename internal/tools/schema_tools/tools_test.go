package schema_tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/inboxpilot/inboxpilot/internal/schema"
	"github.com/inboxpilot/inboxpilot/internal/server"
	"github.com/inboxpilot/inboxpilot/internal/store"
	"github.com/inboxpilot/inboxpilot/internal/tenant"
)

func callWith(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content is %T, want TextContent", result.Content[0])
	}
	return tc.Text
}

func TestValidateHandler_ValidEvent(t *testing.T) {
	handler := validateHandler(func(payload any) (any, error) { return schema.ValidateEvent(payload) })

	result, err := handler(context.Background(), callWith(map[string]interface{}{
		"payload": map[string]interface{}{
			"title":    "Planning call",
			"type":     "MEETING",
			"startsAt": "2025-03-01T10:00:00+01:00",
		},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("valid payload rejected: %s", resultText(t, result))
	}

	var event schema.EventPayload
	if err := json.Unmarshal([]byte(resultText(t, result)), &event); err != nil {
		t.Fatalf("result is not an event payload: %v", err)
	}
	if event.Title != "Planning call" || event.Type != "MEETING" {
		t.Errorf("normalized event = %+v", event)
	}
}

func TestValidateHandler_InvalidEvent(t *testing.T) {
	handler := validateHandler(func(payload any) (any, error) { return schema.ValidateEvent(payload) })

	result, err := handler(context.Background(), callWith(map[string]interface{}{
		"payload": map[string]interface{}{
			"title": "No type or start",
		},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("invalid payload should produce an error result")
	}
	if text := resultText(t, result); !strings.Contains(text, "invalid") {
		t.Errorf("error %q should describe the validation failure", text)
	}
}

func TestValidateHandler_UnknownField(t *testing.T) {
	handler := validateHandler(func(payload any) (any, error) { return schema.ValidateTaskUpdate(payload) })

	result, err := handler(context.Background(), callWith(map[string]interface{}{
		"payload": map[string]interface{}{
			"title":    "Renamed task",
			"priority": "high",
		},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("unknown field should produce an error result")
	}
}

func TestValidateHandler_MissingPayload(t *testing.T) {
	handler := validateHandler(func(payload any) (any, error) { return schema.ValidateSortRule(payload) })

	result, err := handler(context.Background(), callWith(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("missing payload should produce an error result")
	}
}

func TestValidateHandler_SortRule(t *testing.T) {
	handler := validateHandler(func(payload any) (any, error) { return schema.ValidateSortRule(payload) })

	result, err := handler(context.Background(), callWith(map[string]interface{}{
		"payload": map[string]interface{}{
			"field": "receivedAt",
			"order": "desc",
		},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("valid sort rule rejected: %s", resultText(t, result))
	}

	result, err = handler(context.Background(), callWith(map[string]interface{}{
		"payload": map[string]interface{}{
			"field": "priority",
			"order": "desc",
		},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("unsupported sort field should produce an error result")
	}
}

func TestValidateHandler_EmailRef(t *testing.T) {
	handler := validateHandler(func(payload any) (any, error) { return schema.ValidateEmailRef(payload) })

	result, err := handler(context.Background(), callWith(map[string]interface{}{
		"payload": map[string]interface{}{"emailId": "em-1"},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("valid email reference rejected: %s", resultText(t, result))
	}

	result, err = handler(context.Background(), callWith(map[string]interface{}{
		"payload": map[string]interface{}{"emailId": ""},
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Error("empty email reference should produce an error result")
	}
}

func TestRegisterSchemaTools(t *testing.T) {
	st := store.NewMemoryStore()
	sc := server.NewServerContext(context.Background(), server.Deps{
		Store:    st,
		Resolver: tenant.NewResolver(st, nil),
	})
	t.Cleanup(func() { _ = sc.Shutdown() })

	srv := mcpserver.NewMCPServer("test", "0.0.1", mcpserver.WithToolCapabilities(true))
	if err := RegisterSchemaTools(srv, sc); err != nil {
		t.Fatalf("RegisterSchemaTools() error = %v", err)
	}

	names := make(map[string]bool)
	for _, registered := range srv.ListTools() {
		names[registered.Tool.Name] = true
	}
	for _, want := range []string{
		"schema_validate_event",
		"schema_validate_event_update",
		"schema_validate_task",
		"schema_validate_task_update",
		"schema_validate_email_ref",
		"schema_validate_sort_rule",
	} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}
