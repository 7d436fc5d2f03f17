package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/inboxpilot/inboxpilot/internal/logging"
	"github.com/inboxpilot/inboxpilot/internal/store"
)

// UnresolvedTenantError indicates that an authenticated external
// identifier has no provisioned tenant namespace. Namespace creation is
// an external collaborator's responsibility, so this is fatal for the
// request and points at an upstream provisioning bug.
type UnresolvedTenantError struct {
	ExternalID string
}

// Error implements the error interface.
func (e *UnresolvedTenantError) Error() string {
	return fmt.Sprintf("no tenant namespace for external identifier %q", e.ExternalID)
}

// Message returns the user-facing description of the failure.
func (e *UnresolvedTenantError) Message() string {
	return "Your account is not set up yet. Please contact support."
}

// Resolution is the outcome of a successful tenant lookup.
type Resolution struct {
	// CanonicalID is the internal document-namespace identifier.
	CanonicalID string

	// Namespace is the data handle scoped to the tenant's documents.
	Namespace store.Namespace
}

// Resolver maps authenticated external identities to their canonical
// per-tenant document namespaces, following at most one historical
// migration redirect.
type Resolver struct {
	st     store.Store
	system store.Namespace
	group  singleflight.Group
	logger *slog.Logger
}

// NewResolver creates a resolver backed by the given store.
func NewResolver(st store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		st:     st,
		system: st.Namespace(store.SystemNamespace),
		logger: logger,
	}
}

// Resolve returns the canonical identifier and namespace handle for an
// external identity. Concurrent calls for the same identifier collapse
// into one lookup, so resolution is idempotent under race and can never
// produce duplicate namespaces.
func (r *Resolver) Resolve(ctx context.Context, externalID string) (*Resolution, error) {
	if externalID == "" {
		return nil, &UnresolvedTenantError{ExternalID: externalID}
	}

	v, err, _ := r.group.Do(externalID, func() (any, error) {
		return r.lookup(ctx, externalID)
	})
	if err != nil {
		return nil, err
	}

	canonical := v.(string)
	return &Resolution{
		CanonicalID: canonical,
		Namespace:   r.st.Namespace(canonical),
	}, nil
}

// lookup finds the canonical identifier for an external identity.
// The redirect table is one-hop: a migrated identity points directly at
// its new canonical identifier, never at another redirect.
func (r *Resolver) lookup(ctx context.Context, externalID string) (string, error) {
	doc, err := r.system.Get(ctx, store.CollectionUsers, externalID)
	if err == nil {
		if canonical := doc.String("canonicalId"); canonical != "" {
			return canonical, nil
		}
		return "", fmt.Errorf("user record %s has no canonical identifier", externalID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("tenant lookup failed: %w", err)
	}

	redirect, err := r.system.Get(ctx, store.CollectionRedirect, externalID)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("unresolved tenant", logging.Tenant(externalID))
		return "", &UnresolvedTenantError{ExternalID: externalID}
	}
	if err != nil {
		return "", fmt.Errorf("tenant redirect lookup failed: %w", err)
	}

	target := redirect.String("to")
	if target == "" {
		return "", fmt.Errorf("redirect record %s has no target", externalID)
	}

	doc, err = r.system.Get(ctx, store.CollectionUsers, target)
	if errors.Is(err, store.ErrNotFound) {
		// Redirect to a missing user record is a provisioning bug.
		r.logger.Warn("redirect points at missing tenant", logging.Tenant(externalID))
		return "", &UnresolvedTenantError{ExternalID: externalID}
	}
	if err != nil {
		return "", fmt.Errorf("tenant lookup failed: %w", err)
	}

	canonical := doc.String("canonicalId")
	if canonical == "" {
		return "", fmt.Errorf("user record %s has no canonical identifier", target)
	}
	return canonical, nil
}
