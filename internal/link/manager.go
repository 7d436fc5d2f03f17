package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/inboxpilot/inboxpilot/internal/logging"
	"github.com/inboxpilot/inboxpilot/internal/schema"
	"github.com/inboxpilot/inboxpilot/internal/store"
)

// Account field names in the accounts collection. Each account
// document is keyed by its provider name, so a tenant can hold at most
// one linked account per provider.
const (
	fieldAccountID  = "id"
	fieldProvider   = "provider"
	fieldProviderID = "providerAccountId"
	fieldEmail      = "email"
	fieldLinkedAt   = "linkedAt"
)

// settingsDocID is the per-tenant settings document holding the active
// account pointer.
const settingsDocID = "profile"

const fieldActiveAccount = "activeAccount"

// Account is one linked provider account in a tenant namespace.
type Account struct {
	ID                string    `json:"id"`
	Provider          string    `json:"provider"`
	ProviderAccountID string    `json:"providerAccountId"`
	Email             string    `json:"email,omitempty"`
	LinkedAt          time.Time `json:"linkedAt"`
}

// PendingLink is an issued, not-yet-redeemed link flow.
type PendingLink struct {
	// Token is the single-use signed token the provider callback must
	// present.
	Token string `json:"token"`

	// AuthorizeURL starts the provider's authorization flow. The token
	// rides along as the OAuth state parameter.
	AuthorizeURL string `json:"authorizeUrl"`

	// ExpiresAt is when the token stops being redeemable.
	ExpiresAt time.Time `json:"expiresAt"`
}

// Manager drives the account link state machine: unlinked, pending
// after IssueToken, linked after a successful Consume. Linking a
// provider that already has an account supersedes the old link.
type Manager struct {
	store     store.Store
	secret    []byte
	providers map[string]ProviderConfig
	registry  *tokenRegistry
	logger    *slog.Logger
}

// NewManager creates an account link manager. The secret signs link
// tokens; providers lists the identity providers accounts may be
// linked through.
func NewManager(st store.Store, secret []byte, providers []ProviderConfig, logger *slog.Logger) (*Manager, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("link token secret must be at least 32 bytes")
	}
	if logger == nil {
		logger = slog.Default()
	}

	byName := make(map[string]ProviderConfig, len(providers))
	for _, p := range providers {
		if p.Name == "" {
			return nil, fmt.Errorf("provider with empty name")
		}
		byName[p.Name] = p
	}

	return &Manager{
		store:     st,
		secret:    secret,
		providers: byName,
		registry:  newTokenRegistry(logger),
		logger:    logger,
	}, nil
}

// Close stops the token cleanup goroutine.
func (m *Manager) Close() {
	m.registry.close()
}

// IssueToken starts a link flow for the tenant and provider. The
// returned token is single-use and expires after TokenTTL.
func (m *Manager) IssueToken(ctx context.Context, ns store.Namespace, provider string) (*PendingLink, error) {
	cfg, ok := m.providers[provider]
	if !ok {
		return nil, &UnknownProviderError{Provider: provider}
	}

	token, jti, expiresAt, err := signToken(m.secret, ns.Tenant(), provider, time.Now())
	if err != nil {
		return nil, err
	}
	m.registry.add(jti, expiresAt)

	m.logger.Info("link token issued",
		logging.Tenant(ns.Tenant()),
		logging.Provider(provider),
		slog.String("token", logging.SanitizeToken(token)),
	)
	return &PendingLink{
		Token:        token,
		AuthorizeURL: cfg.oauthConfig().AuthCodeURL(token, oauth2.AccessTypeOffline),
		ExpiresAt:    expiresAt,
	}, nil
}

// Consume redeems a link token and records the linked account. The
// verify-and-consume step is atomic: a token presented twice fails the
// second time with a TokenConsumedError, regardless of timing. Any
// prior link for the same provider is replaced.
//
// The payload is validated before the token is touched, so a malformed
// callback does not burn the token.
func (m *Manager) Consume(ctx context.Context, ns store.Namespace, token string, payload *schema.LinkPayload) (*Account, error) {
	if _, err := schema.ValidateLink(payload); err != nil {
		return nil, err
	}

	claims, err := parseToken(m.secret, token)
	if err != nil {
		return nil, err
	}
	if claims.Subject != ns.Tenant() {
		return nil, &InvalidTokenError{Reason: "token issued for another tenant"}
	}
	if claims.Provider != payload.Provider {
		return nil, &InvalidTokenError{Reason: "token issued for another provider"}
	}

	if err := m.registry.redeem(claims.ID); err != nil {
		m.logger.Warn("link token rejected",
			logging.Tenant(ns.Tenant()),
			logging.Provider(payload.Provider),
			logging.Err(err),
		)
		return nil, err
	}

	account := &Account{
		ID:                uuid.NewString(),
		Provider:          payload.Provider,
		ProviderAccountID: payload.ProviderAccountID,
		Email:             payload.Email,
		LinkedAt:          time.Now().UTC(),
	}

	// Every field is written, so a superseded link leaves nothing of
	// the old account behind.
	_, err = ns.Merge(ctx, store.CollectionAccounts, account.Provider, store.Fields{
		fieldAccountID:  account.ID,
		fieldProvider:   account.Provider,
		fieldProviderID: account.ProviderAccountID,
		fieldEmail:      account.Email,
		fieldLinkedAt:   account.LinkedAt.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store linked account: %w", err)
	}

	m.logger.Info("account linked",
		logging.Tenant(ns.Tenant()),
		logging.Provider(account.Provider),
	)
	return account, nil
}

// ListAccounts returns the tenant's linked accounts plus the active
// provider, which is empty when no active account is set.
func (m *Manager) ListAccounts(ctx context.Context, ns store.Namespace) ([]*Account, string, error) {
	docs, err := ns.Query(ctx, store.Query{Collection: store.CollectionAccounts})
	if err != nil {
		return nil, "", fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]*Account, 0, len(docs))
	for _, doc := range docs {
		account, err := accountFromDocument(doc)
		if err != nil {
			return nil, "", err
		}
		accounts = append(accounts, account)
	}

	active, err := m.activeAccount(ctx, ns)
	if err != nil {
		return nil, "", err
	}
	return accounts, active, nil
}

// SetActiveAccount points the tenant's active account at the given
// provider, which must be linked. An empty provider clears the
// pointer.
func (m *Manager) SetActiveAccount(ctx context.Context, ns store.Namespace, provider string) error {
	if provider != "" {
		if _, err := ns.Get(ctx, store.CollectionAccounts, provider); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no linked account for provider %q: %w", provider, err)
			}
			return err
		}
	}

	_, err := ns.Merge(ctx, store.CollectionSettings, settingsDocID, store.Fields{
		fieldActiveAccount: provider,
	})
	if err != nil {
		return fmt.Errorf("failed to set active account: %w", err)
	}
	return nil
}

// Unlink removes the provider's linked account. Unlinking the active
// account clears the active pointer. Unlinking a provider that is not
// linked is not an error.
func (m *Manager) Unlink(ctx context.Context, ns store.Namespace, provider string) error {
	active, err := m.activeAccount(ctx, ns)
	if err != nil {
		return err
	}

	if err := ns.Delete(ctx, store.CollectionAccounts, provider); err != nil {
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	if active == provider && provider != "" {
		if _, err := ns.Merge(ctx, store.CollectionSettings, settingsDocID, store.Fields{
			fieldActiveAccount: "",
		}); err != nil {
			return fmt.Errorf("failed to clear active account: %w", err)
		}
	}

	m.logger.Info("account unlinked",
		logging.Tenant(ns.Tenant()),
		logging.Provider(provider),
	)
	return nil
}

func (m *Manager) activeAccount(ctx context.Context, ns store.Namespace) (string, error) {
	doc, err := ns.Get(ctx, store.CollectionSettings, settingsDocID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read settings: %w", err)
	}
	return doc.String(fieldActiveAccount), nil
}

func accountFromDocument(doc *store.Document) (*Account, error) {
	account := &Account{
		ID:                doc.String(fieldAccountID),
		Provider:          doc.String(fieldProvider),
		ProviderAccountID: doc.String(fieldProviderID),
		Email:             doc.String(fieldEmail),
	}
	if raw := doc.String(fieldLinkedAt); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("account %s has invalid linkedAt: %w", doc.ID, err)
		}
		account.LinkedAt = t
	}
	return account, nil
}
