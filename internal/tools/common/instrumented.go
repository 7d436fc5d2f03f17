package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/inboxpilot/inboxpilot/internal/instrumentation"
	"github.com/inboxpilot/inboxpilot/internal/server"
)

// ToolHandler is the handler signature mcp-go expects for tools. It is
// an alias so wrapped handlers stay assignable to the server's own
// handler type at AddTool call sites.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with metrics and audit
// logging. Invocations are traced, timed and recorded under the tool's
// name; the caller identity only ever reaches logs as a hash unless the
// audit logger is configured to include it.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return instrumented(toolName, "", "", sc, handler)
}

// InstrumentedEngineToolHandler is like InstrumentedToolHandler but also
// records which assistant engine and operation served the invocation, so
// engine-level latency shows up separately from tool-level latency.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedEngineToolHandler("my_tool", instrumentation.EngineClassify, "classify", sc, handler))
func InstrumentedEngineToolHandler(toolName, engine, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return instrumented(toolName, engine, operation, sc, handler)
}

func instrumented(toolName, engine, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.Audit()

		if metrics == nil && auditLogger == nil {
			return handler(ctx, request)
		}

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)
		if engine != "" {
			invocation.WithEngine(engine, operation)
		}

		args := request.GetArguments()
		if user, ok := args["user"].(string); ok && user != "" {
			invocation.WithTenant(user)
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			if err != nil {
				invocation.CompleteWithError(err)
			} else {
				invocation.Complete(false, nil)
			}
		} else {
			invocation.CompleteSuccess()
		}

		if metrics != nil {
			metrics.RecordToolInvocation(ctx, toolName, status, duration)
			if engine != "" {
				metrics.RecordEngineOperation(ctx, engine, operation, status, duration)
			}
		}

		if auditLogger != nil {
			auditLogger.LogToolInvocation(invocation)
		}

		return result, err
	}
}
