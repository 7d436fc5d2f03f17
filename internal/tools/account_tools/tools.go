package account_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/inboxpilot/inboxpilot/internal/instrumentation"
	"github.com/inboxpilot/inboxpilot/internal/link"
	"github.com/inboxpilot/inboxpilot/internal/schema"
	"github.com/inboxpilot/inboxpilot/internal/server"
	"github.com/inboxpilot/inboxpilot/internal/tools/common"
)

// RegisterAccountTools registers account-linking tools with the MCP
// server. When no link manager is configured the tools are not
// registered at all, so callers never reach a handler that cannot
// serve them.
func RegisterAccountTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if sc.Links() == nil {
		return nil
	}

	listTool := mcp.NewTool("account_list",
		mcp.WithDescription("List the user's linked provider accounts and which one is active"),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("account_list", sc, listAccountsHandler(sc)))

	if readOnly {
		return nil
	}

	beginTool := mcp.NewTool("account_link_begin",
		mcp.WithDescription("Start linking a provider account. Returns a single-use link token and the provider's authorization URL."),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
		mcp.WithString("provider",
			mcp.Required(),
			mcp.Description("Provider to link (e.g. 'google', 'microsoft')"),
		),
	)
	s.AddTool(beginTool, common.InstrumentedToolHandler("account_link_begin", sc, linkBeginHandler(sc)))

	completeTool := mcp.NewTool("account_link_complete",
		mcp.WithDescription("Complete an account link with the token from account_link_begin and the provider identity from the authorization callback. Each token works exactly once."),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
		mcp.WithString("token",
			mcp.Required(),
			mcp.Description("The link token issued by account_link_begin"),
		),
		mcp.WithString("provider",
			mcp.Required(),
			mcp.Description("Provider that completed the flow"),
		),
		mcp.WithString("providerAccountId",
			mcp.Required(),
			mcp.Description("The provider-side account identifier"),
		),
		mcp.WithString("email",
			mcp.Description("The provider-side account email, if known"),
		),
	)
	s.AddTool(completeTool, common.InstrumentedToolHandler("account_link_complete", sc, linkCompleteHandler(sc)))

	setActiveTool := mcp.NewTool("account_set_active",
		mcp.WithDescription("Set which linked account is active, or clear the active account by passing an empty provider"),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
		mcp.WithString("provider",
			mcp.Description("Provider of the account to activate; empty clears the active account"),
		),
	)
	s.AddTool(setActiveTool, common.InstrumentedToolHandler("account_set_active", sc, setActiveHandler(sc)))

	unlinkTool := mcp.NewTool("account_unlink",
		mcp.WithDescription("Remove a linked provider account. Unlinking the active account clears the active pointer."),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("External identity of the calling user"),
		),
		mcp.WithString("provider",
			mcp.Required(),
			mcp.Description("Provider of the account to unlink"),
		),
	)
	s.AddTool(unlinkTool, common.InstrumentedToolHandler("account_unlink", sc, unlinkHandler(sc)))

	return nil
}

// pendingLinkResult is the wire shape for account_link_begin.
type pendingLinkResult struct {
	Token        string `json:"token"`
	AuthorizeURL string `json:"authorizeUrl"`
	ExpiresAt    string `json:"expiresAt"`
}

func linkBeginHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		provider, err := common.RequireString(args, "provider")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		pending, err := sc.Links().IssueToken(ctx, ns, provider)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		result, _ := json.MarshalIndent(pendingLinkResult{
			Token:        pending.Token,
			AuthorizeURL: pending.AuthorizeURL,
			ExpiresAt:    pending.ExpiresAt.Format(time.RFC3339),
		}, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}
}

func linkCompleteHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		token, err := common.RequireString(args, "token")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		provider, err := common.RequireString(args, "provider")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		providerAccountID, err := common.RequireString(args, "providerAccountId")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		email, _ := args["email"].(string)

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		account, err := sc.Links().Consume(ctx, ns, token, &schema.LinkPayload{
			Provider:          provider,
			ProviderAccountID: providerAccountID,
			Email:             email,
		})
		recordLinkFlow(ctx, sc, provider, err)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		result, _ := json.MarshalIndent(account, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}
}

// recordLinkFlow maps a consume outcome onto the link flow counter.
func recordLinkFlow(ctx context.Context, sc *server.ServerContext, provider string, err error) {
	metrics := sc.Metrics()
	if metrics == nil {
		return
	}

	result := instrumentation.LinkResultSuccess
	var expired *link.TokenExpiredError
	var consumed *link.TokenConsumedError
	switch {
	case err == nil:
	case errors.As(err, &expired):
		result = instrumentation.LinkResultExpired
	case errors.As(err, &consumed):
		result = instrumentation.LinkResultConsumed
	default:
		result = instrumentation.LinkResultInvalid
	}
	metrics.RecordLinkFlow(ctx, provider, result)
}

// accountListResult is the wire shape for account_list.
type accountListResult struct {
	Accounts []*link.Account `json:"accounts"`
	Active   string          `json:"active,omitempty"`
}

func listAccountsHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		accounts, active, err := sc.Links().ListAccounts(ctx, ns)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		result, _ := json.MarshalIndent(accountListResult{
			Accounts: accounts,
			Active:   active,
		}, "", "  ")
		return mcp.NewToolResultText(string(result)), nil
	}
}

func setActiveHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		provider, _ := args["provider"].(string)

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		if err := sc.Links().SetActiveAccount(ctx, ns, provider); err != nil {
			return common.ErrorResult(err), nil
		}

		if provider == "" {
			return mcp.NewToolResultText("Active account cleared"), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Active account set to %s", provider)), nil
	}
}

func unlinkHandler(sc *server.ServerContext) common.ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		user, err := common.RequireIdentity(args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		provider, err := common.RequireString(args, "provider")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		ns, err := sc.Namespace(ctx, user)
		if err != nil {
			return common.ErrorResult(err), nil
		}

		if err := sc.Links().Unlink(ctx, ns, provider); err != nil {
			return common.ErrorResult(err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Account for %s unlinked", provider)), nil
	}
}
