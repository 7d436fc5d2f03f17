package link

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxpilot/inboxpilot/internal/schema"
	"github.com/inboxpilot/inboxpilot/internal/store"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:         "google",
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			AuthURL:      "https://accounts.google.com/o/oauth2/auth",
			TokenURL:     "https://oauth2.googleapis.com/token",
			RedirectURL:  "https://app.example.com/callback",
			Scopes:       []string{"email"},
		},
		{
			Name:     "microsoft",
			ClientID: "client-id-ms",
			AuthURL:  "https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			TokenURL: "https://login.microsoftonline.com/common/oauth2/v2.0/token",
		},
	}
}

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	m, err := NewManager(st, testSecret, testProviders(), nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, st
}

func googlePayload() *schema.LinkPayload {
	return &schema.LinkPayload{
		Provider:          "google",
		ProviderAccountID: "acct-123",
		Email:             "user@example.com",
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	_, err := NewManager(store.NewMemoryStore(), []byte("short"), testProviders(), nil)
	assert.Error(t, err)
}

func TestIssueAndConsume(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, ns, "google")
	require.NoError(t, err)
	assert.NotEmpty(t, pending.Token)
	assert.Contains(t, pending.AuthorizeURL, "accounts.google.com")
	assert.Contains(t, pending.AuthorizeURL, "state=")
	assert.WithinDuration(t, time.Now().Add(TokenTTL), pending.ExpiresAt, time.Minute)

	account, err := m.Consume(ctx, ns, pending.Token, googlePayload())
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "google", account.Provider)
	assert.Equal(t, "acct-123", account.ProviderAccountID)
	assert.Equal(t, "user@example.com", account.Email)
	assert.False(t, account.LinkedAt.IsZero())

	accounts, active, err := m.ListAccounts(ctx, ns)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "google", accounts[0].Provider)
	assert.Empty(t, active)
}

func TestIssueTokenUnknownProvider(t *testing.T) {
	m, st := newTestManager(t)

	_, err := m.IssueToken(context.Background(), st.Namespace("tenant-a"), "yahoo")
	var unknown *UnknownProviderError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "yahoo", unknown.Provider)
}

func TestConsumeTwiceFails(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, ns, "google")
	require.NoError(t, err)

	_, err = m.Consume(ctx, ns, pending.Token, googlePayload())
	require.NoError(t, err)

	_, err = m.Consume(ctx, ns, pending.Token, googlePayload())
	var consumed *TokenConsumedError
	require.ErrorAs(t, err, &consumed)
	assert.NotEqual(t, consumed.Error(), consumed.Message())
}

func TestConsumeInvalidPayload(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, ns, "google")
	require.NoError(t, err)

	payload := googlePayload()
	payload.Email = "definitely not an email"
	_, err = m.Consume(ctx, ns, pending.Token, payload)
	var violation *schema.ValidationError
	require.ErrorAs(t, err, &violation)

	// Nothing was persisted and the token was not burned.
	_, err = ns.Get(ctx, store.CollectionAccounts, "google")
	assert.ErrorIs(t, err, store.ErrNotFound)

	account, err := m.Consume(ctx, ns, pending.Token, googlePayload())
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", account.Email)
}

func TestConsumeNilPayload(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, ns, "google")
	require.NoError(t, err)

	_, err = m.Consume(ctx, ns, pending.Token, nil)
	var violation *schema.ValidationError
	require.ErrorAs(t, err, &violation)
}

func TestConsumeConcurrentReplay(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, ns, "google")
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Consume(ctx, ns, pending.Token, googlePayload())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	// Exactly one redemption wins.
	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			var consumed *TokenConsumedError
			assert.ErrorAs(t, err, &consumed)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestConsumeWrongTenant(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, st.Namespace("tenant-a"), "google")
	require.NoError(t, err)

	_, err = m.Consume(ctx, st.Namespace("tenant-b"), pending.Token, googlePayload())
	var invalid *InvalidTokenError
	require.ErrorAs(t, err, &invalid)

	// The token stays pending for its own tenant.
	_, err = m.Consume(ctx, st.Namespace("tenant-a"), pending.Token, googlePayload())
	assert.NoError(t, err)
}

func TestConsumeWrongProvider(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, ns, "microsoft")
	require.NoError(t, err)

	_, err = m.Consume(ctx, ns, pending.Token, googlePayload())
	var invalid *InvalidTokenError
	assert.ErrorAs(t, err, &invalid)
}

func TestConsumeGarbageToken(t *testing.T) {
	m, st := newTestManager(t)

	_, err := m.Consume(context.Background(), st.Namespace("tenant-a"), "not-a-token", googlePayload())
	var invalid *InvalidTokenError
	assert.ErrorAs(t, err, &invalid)
}

func TestConsumeExpiredToken(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")

	// Sign a token whose lifetime already elapsed.
	token, jti, expiresAt, err := signToken(testSecret, ns.Tenant(), "google", time.Now().Add(-2*TokenTTL))
	require.NoError(t, err)
	m.registry.add(jti, expiresAt)

	_, err = m.Consume(context.Background(), ns, token, googlePayload())
	var expired *TokenExpiredError
	require.ErrorAs(t, err, &expired)
	assert.NotEqual(t, expired.Error(), expired.Message())
}

func TestRelinkSupersedesPriorLink(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")
	ctx := context.Background()

	first, err := m.IssueToken(ctx, ns, "google")
	require.NoError(t, err)
	_, err = m.Consume(ctx, ns, first.Token, googlePayload())
	require.NoError(t, err)

	second, err := m.IssueToken(ctx, ns, "google")
	require.NoError(t, err)
	_, err = m.Consume(ctx, ns, second.Token, &schema.LinkPayload{
		Provider:          "google",
		ProviderAccountID: "acct-456",
	})
	require.NoError(t, err)

	accounts, _, err := m.ListAccounts(ctx, ns)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acct-456", accounts[0].ProviderAccountID)
	assert.Empty(t, accounts[0].Email)
}

func TestSetActiveAccount(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, ns, "google")
	require.NoError(t, err)
	_, err = m.Consume(ctx, ns, pending.Token, googlePayload())
	require.NoError(t, err)

	require.NoError(t, m.SetActiveAccount(ctx, ns, "google"))

	_, active, err := m.ListAccounts(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, "google", active)

	// Clearing works with the empty provider.
	require.NoError(t, m.SetActiveAccount(ctx, ns, ""))
	_, active, err = m.ListAccounts(ctx, ns)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSetActiveAccountUnlinkedProvider(t *testing.T) {
	m, st := newTestManager(t)

	err := m.SetActiveAccount(context.Background(), st.Namespace("tenant-a"), "google")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnlinkClearsActivePointer(t *testing.T) {
	m, st := newTestManager(t)
	ns := st.Namespace("tenant-a")
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, ns, "google")
	require.NoError(t, err)
	_, err = m.Consume(ctx, ns, pending.Token, googlePayload())
	require.NoError(t, err)
	require.NoError(t, m.SetActiveAccount(ctx, ns, "google"))

	require.NoError(t, m.Unlink(ctx, ns, "google"))

	accounts, active, err := m.ListAccounts(ctx, ns)
	require.NoError(t, err)
	assert.Empty(t, accounts)
	assert.Empty(t, active)
}

func TestUnlinkAbsentProvider(t *testing.T) {
	m, st := newTestManager(t)

	assert.NoError(t, m.Unlink(context.Background(), st.Namespace("tenant-a"), "google"))
}

func TestTenantIsolation(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	pending, err := m.IssueToken(ctx, st.Namespace("tenant-a"), "google")
	require.NoError(t, err)
	_, err = m.Consume(ctx, st.Namespace("tenant-a"), pending.Token, googlePayload())
	require.NoError(t, err)

	accounts, _, err := m.ListAccounts(ctx, st.Namespace("tenant-b"))
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
