package common

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/inboxpilot/inboxpilot/internal/store"
)

// RequireIdentity extracts the caller's external identity from request
// arguments. Every tool is tenant-scoped, so the "user" argument is
// mandatory.
func RequireIdentity(args map[string]interface{}) (string, error) {
	user, ok := args["user"].(string)
	if !ok || user == "" {
		return "", fmt.Errorf("user is required")
	}
	return user, nil
}

// RequireString extracts a required string argument.
func RequireString(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// messager is implemented by domain errors that carry a stable,
// user-facing message alongside their internal Error() detail.
type messager interface {
	Message() string
}

// ErrorResult converts an error into a tool error result. Domain errors
// surface their stable message; store sentinels get a short phrase; any
// other error is passed through as-is.
func ErrorResult(err error) *mcp.CallToolResult {
	var m messager
	if errors.As(err, &m) {
		return mcp.NewToolResultError(m.Message())
	}
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	if errors.Is(err, store.ErrUnavailable) {
		return mcp.NewToolResultError("storage temporarily unavailable, retry the operation")
	}
	return mcp.NewToolResultError(err.Error())
}
