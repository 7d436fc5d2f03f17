package inbox_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/inboxpilot/inboxpilot/internal/inbox"
	"github.com/inboxpilot/inboxpilot/internal/instrumentation"
	"github.com/inboxpilot/inboxpilot/internal/schema"
	"github.com/inboxpilot/inboxpilot/internal/server"
	"github.com/inboxpilot/inboxpilot/internal/tools/batch"
	"github.com/inboxpilot/inboxpilot/internal/tools/common"
)

// defaultListLimit bounds inbox_list_recent when no limit is given.
const defaultListLimit = 20

// RegisterInboxTools registers all inbox-related tools with the MCP server.
func RegisterInboxTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	classifyTool := mcp.NewTool("inbox_classify_email",
		mcp.WithDescription("Classify an email into one of the assistant's categories (sponsorship, newsletter, personal, transactional, support, spam, other). The label is stored on the email document."),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
		mcp.WithString("emailId",
			mcp.Required(),
			mcp.Description("The ID of the email to classify"),
		),
	)
	s.AddTool(classifyTool, common.InstrumentedEngineToolHandler(
		"inbox_classify_email", instrumentation.EngineClassify, instrumentation.OperationClassify, sc,
		classifyEmailHandler(sc)))

	batchTool := mcp.NewTool("inbox_classify_batch",
		mcp.WithDescription("Classify multiple emails in one call. Accepts a single email ID or an array of IDs and reports per-email success or failure."),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
		mcp.WithString("emailIds",
			mcp.Required(),
			mcp.Description("Email ID or JSON array of email IDs to classify"),
		),
	)
	s.AddTool(batchTool, common.InstrumentedEngineToolHandler(
		"inbox_classify_batch", instrumentation.EngineClassify, instrumentation.OperationClassify, sc,
		classifyBatchHandler(sc)))

	extractTool := mcp.NewTool("inbox_extract_sponsorship",
		mcp.WithDescription("Extract sponsorship offer details (amount, currency, deliverables, deadline) from an email. Only details stated in the email are returned; absent fields are omitted."),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
		mcp.WithString("emailId",
			mcp.Required(),
			mcp.Description("The ID of the email to extract from"),
		),
	)
	s.AddTool(extractTool, common.InstrumentedEngineToolHandler(
		"inbox_extract_sponsorship", instrumentation.EngineExtract, instrumentation.OperationExtract, sc,
		extractSponsorshipHandler(sc)))

	listTool := mcp.NewTool("inbox_list_recent",
		mcp.WithDescription("List the user's most recent emails, newest first. Bodies are not returned."),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of emails to return (default: %d)", defaultListLimit)),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("inbox_list_recent", sc, listRecentHandler(sc)))

	if !readOnly {
		markReadTool := mcp.NewTool("inbox_mark_read",
			mcp.WithDescription("Mark an email as read or unread"),
			mcp.WithString("user",
				mcp.Required(),
				mcp.Description("External identity of the calling user"),
			),
			mcp.WithString("emailId",
				mcp.Required(),
				mcp.Description("The ID of the email to update"),
			),
			mcp.WithBoolean("read",
				mcp.Description("Read state to set (default: true)"),
			),
		)
		s.AddTool(markReadTool, common.InstrumentedToolHandler("inbox_mark_read", sc, markReadHandler(sc)))
	}

	return nil
}

// requireEmailID reads the emailId argument and validates it as an
// email reference before any engine or store call sees it.
func requireEmailID(args map[string]any) (string, error) {
	id, err := common.RequireString(args, "emailId")
	if err != nil {
		return "", err
	}
	ref, err := schema.ValidateEmailRef(schema.EmailRef{EmailID: id})
	if err != nil {
		return "", err
	}
	return ref.EmailID, nil
}

func classifyEmailHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		emailID, err := requireEmailID(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		label, err := sc.Classifier().Classify(ctx, ns, emailID)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		if metrics := sc.Metrics(); metrics != nil {
			metrics.RecordClassification(ctx, label)
		}

		return mcp.NewToolResultText(fmt.Sprintf("Email %s classified as %s", emailID, label)), nil
	}
}

func classifyBatchHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ids, err := batch.ParseStringOrArray(args["emailIds"], "emailIds")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		results := batch.ProcessBatch(ctx, ids, func(id string) (string, error) {
			if _, err := schema.ValidateEmailRef(schema.EmailRef{EmailID: id}); err != nil {
				return "", err
			}
			label, err := sc.Classifier().Classify(ctx, ns, id)
			if err != nil {
				return "", err
			}
			if metrics := sc.Metrics(); metrics != nil {
				metrics.RecordClassification(ctx, label)
			}
			return label, nil
		})

		return mcp.NewToolResultText(batch.FormatResults(results)), nil
	}
}

func extractSponsorshipHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		emailID, err := requireEmailID(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		info, err := sc.Extractor().Extract(ctx, ns, emailID)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		result, _ := json.MarshalIndent(info, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}
}

// listedEmail is the wire shape for inbox_list_recent. Bodies are
// deliberately not included.
type listedEmail struct {
	ID             string `json:"id"`
	Subject        string `json:"subject"`
	From           string `json:"from"`
	ReceivedAt     string `json:"receivedAt,omitempty"`
	Read           bool   `json:"read"`
	Classification string `json:"classification,omitempty"`
}

func listRecentHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		limit := defaultListLimit
		if v, ok := args["limit"].(float64); ok && v > 0 {
			limit = int(v)
		}

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		emails, err := inbox.Recent(ctx, ns, limit)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		listed := make([]listedEmail, 0, len(emails))
		for _, e := range emails {
			le := listedEmail{
				ID:             e.ID,
				Subject:        e.Subject,
				From:           e.From,
				Read:           e.Read,
				Classification: e.Classification,
			}
			if !e.ReceivedAt.IsZero() {
				le.ReceivedAt = e.ReceivedAt.Format(time.RFC3339)
			}
			listed = append(listed, le)
		}

		result, _ := json.MarshalIndent(listed, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}
}

func markReadHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		emailID, err := requireEmailID(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		read := true
		if v, ok := args["read"].(bool); ok {
			read = v
		}

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		if err := inbox.MarkRead(ctx, ns, emailID, read); err != nil {
			return common.ErrorResult(err), nil
		}

		state := "read"
		if !read {
			state = "unread"
		}
		return mcp.NewToolResultText(fmt.Sprintf("Email %s marked as %s", emailID, state)), nil
	}
}
