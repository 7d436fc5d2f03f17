package account_tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/inboxpilot/inboxpilot/internal/link"
	"github.com/inboxpilot/inboxpilot/internal/server"
	"github.com/inboxpilot/inboxpilot/internal/store"
	"github.com/inboxpilot/inboxpilot/internal/tenant"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestContext(t *testing.T) *server.ServerContext {
	t.Helper()

	st := store.NewMemoryStore()
	links, err := link.NewManager(st, testSecret, []link.ProviderConfig{
		{
			Name:         "google",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			AuthURL:      "https://accounts.google.com/o/oauth2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			RedirectURL:  "https://app.example.com/callback",
			Scopes:       []string{"email"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	sc := server.NewServerContext(context.Background(), server.Deps{
		Store:    st,
		Resolver: tenant.NewResolver(st, nil),
		Links:    links,
	})
	t.Cleanup(func() { _ = sc.Shutdown() })

	system := st.Namespace(store.SystemNamespace)
	_, err = system.Merge(context.Background(), store.CollectionUsers, "user@example.com", store.Fields{
		"canonicalId": "tenant-1",
	})
	if err != nil {
		t.Fatalf("failed to seed user mapping: %v", err)
	}
	return sc
}

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

func beginLink(t *testing.T, sc *server.ServerContext) pendingLinkResult {
	t.Helper()

	result, err := linkBeginHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user":     "user@example.com",
		"provider": "google",
	}))
	if err != nil {
		t.Fatalf("link begin error: %v", err)
	}
	if result.IsError {
		t.Fatalf("link begin returned error result: %s", resultText(t, result))
	}

	var pending pendingLinkResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &pending); err != nil {
		t.Fatalf("link begin result is not JSON: %v", err)
	}
	if pending.Token == "" || pending.AuthorizeURL == "" {
		t.Fatalf("pending link incomplete: %+v", pending)
	}
	return pending
}

func TestLinkBeginAndComplete(t *testing.T) {
	sc := newTestContext(t)
	pending := beginLink(t, sc)

	result, err := linkCompleteHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user":              "user@example.com",
		"token":             pending.Token,
		"provider":          "google",
		"providerAccountId": "acct-123",
		"email":             "linked@gmail.com",
	}))
	if err != nil {
		t.Fatalf("link complete error: %v", err)
	}
	if result.IsError {
		t.Fatalf("link complete returned error result: %s", resultText(t, result))
	}

	var account link.Account
	if err := json.Unmarshal([]byte(resultText(t, result)), &account); err != nil {
		t.Fatalf("link complete result is not an account: %v", err)
	}
	if account.Provider != "google" || account.ProviderAccountID != "acct-123" {
		t.Errorf("account = %+v, want google/acct-123", account)
	}
}

func TestLinkComplete_TokenSingleUse(t *testing.T) {
	sc := newTestContext(t)
	pending := beginLink(t, sc)

	args := map[string]interface{}{
		"user":              "user@example.com",
		"token":             pending.Token,
		"provider":          "google",
		"providerAccountId": "acct-123",
	}

	handler := linkCompleteHandler(sc)
	first, err := handler(context.Background(), callWith(args))
	if err != nil {
		t.Fatalf("first complete error: %v", err)
	}
	if first.IsError {
		t.Fatalf("first complete returned error result: %s", resultText(t, first))
	}

	second, err := handler(context.Background(), callWith(args))
	if err != nil {
		t.Fatalf("second complete error: %v", err)
	}
	if !second.IsError {
		t.Error("replaying a consumed token should produce an error result")
	}
}

func TestLinkBegin_UnknownProvider(t *testing.T) {
	sc := newTestContext(t)

	result, err := linkBeginHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user":     "user@example.com",
		"provider": "yahoo",
	}))
	if err != nil {
		t.Fatalf("link begin error: %v", err)
	}
	if !result.IsError {
		t.Error("unknown provider should produce an error result")
	}
}

func TestListAccountsAndSetActive(t *testing.T) {
	sc := newTestContext(t)
	pending := beginLink(t, sc)

	if _, err := linkCompleteHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user":              "user@example.com",
		"token":             pending.Token,
		"provider":          "google",
		"providerAccountId": "acct-123",
	})); err != nil {
		t.Fatalf("link complete error: %v", err)
	}

	result, err := setActiveHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user":     "user@example.com",
		"provider": "google",
	}))
	if err != nil {
		t.Fatalf("set active error: %v", err)
	}
	if result.IsError {
		t.Fatalf("set active returned error result: %s", resultText(t, result))
	}

	result, err = listAccountsHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user": "user@example.com",
	}))
	if err != nil {
		t.Fatalf("list error: %v", err)
	}

	var listed accountListResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &listed); err != nil {
		t.Fatalf("list result is not JSON: %v", err)
	}
	if len(listed.Accounts) != 1 {
		t.Fatalf("listed %d accounts, want 1", len(listed.Accounts))
	}
	if listed.Active != "google" {
		t.Errorf("active = %q, want google", listed.Active)
	}
}

func TestSetActive_UnlinkedProvider(t *testing.T) {
	sc := newTestContext(t)

	result, err := setActiveHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user":     "user@example.com",
		"provider": "google",
	}))
	if err != nil {
		t.Fatalf("set active error: %v", err)
	}
	if !result.IsError {
		t.Error("activating an unlinked provider should produce an error result")
	}
}

func TestUnlinkClearsActive(t *testing.T) {
	sc := newTestContext(t)
	pending := beginLink(t, sc)

	if _, err := linkCompleteHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user":              "user@example.com",
		"token":             pending.Token,
		"provider":          "google",
		"providerAccountId": "acct-123",
	})); err != nil {
		t.Fatalf("link complete error: %v", err)
	}
	if _, err := setActiveHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user":     "user@example.com",
		"provider": "google",
	})); err != nil {
		t.Fatalf("set active error: %v", err)
	}

	result, err := unlinkHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user":     "user@example.com",
		"provider": "google",
	}))
	if err != nil {
		t.Fatalf("unlink error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unlink returned error result: %s", resultText(t, result))
	}

	result, err = listAccountsHandler(sc)(context.Background(), callWith(map[string]interface{}{
		"user": "user@example.com",
	}))
	if err != nil {
		t.Fatalf("list error: %v", err)
	}

	var listed accountListResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &listed); err != nil {
		t.Fatalf("list result is not JSON: %v", err)
	}
	if len(listed.Accounts) != 0 {
		t.Errorf("listed %d accounts after unlink, want 0", len(listed.Accounts))
	}
	if listed.Active != "" {
		t.Errorf("active = %q after unlink, want empty", listed.Active)
	}
}

func TestRegisterAccountToolsWithoutLinkManager(t *testing.T) {
	st := store.NewMemoryStore()
	sc := server.NewServerContext(context.Background(), server.Deps{
		Store:    st,
		Resolver: tenant.NewResolver(st, nil),
	})
	t.Cleanup(func() { _ = sc.Shutdown() })

	srv := mcpserver.NewMCPServer("test", "0.0.1", mcpserver.WithToolCapabilities(true))
	if err := RegisterAccountTools(srv, sc, false); err != nil {
		t.Fatalf("RegisterAccountTools() error = %v", err)
	}
	if got := len(srv.ListTools()); got != 0 {
		t.Errorf("registered %d account tools without a link manager, want 0", got)
	}
}
