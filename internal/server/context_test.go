package server

import (
	"context"
	"errors"
	"testing"

	"github.com/inboxpilot/inboxpilot/internal/store"
	"github.com/inboxpilot/inboxpilot/internal/tenant"
)

func newTestServerContext(t *testing.T) (*ServerContext, store.Store) {
	t.Helper()

	st := store.NewMemoryStore()
	sc := NewServerContext(context.Background(), Deps{
		Store:    st,
		Resolver: tenant.NewResolver(st, nil),
	})
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc, st
}

func TestServerContext_Namespace(t *testing.T) {
	sc, st := newTestServerContext(t)
	ctx := context.Background()

	system := st.Namespace(store.SystemNamespace)
	if _, err := system.Merge(ctx, store.CollectionUsers, "user@example.com", store.Fields{
		"canonicalId": "tenant-1",
	}); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	ns, err := sc.Namespace(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Namespace() error = %v", err)
	}
	if ns.Tenant() != "tenant-1" {
		t.Errorf("Tenant() = %q, want %q", ns.Tenant(), "tenant-1")
	}
}

func TestServerContext_NamespaceUnresolved(t *testing.T) {
	sc, _ := newTestServerContext(t)

	_, err := sc.Namespace(context.Background(), "nobody@example.com")
	var unresolved *tenant.UnresolvedTenantError
	if !errors.As(err, &unresolved) {
		t.Fatalf("Namespace() error = %v, want UnresolvedTenantError", err)
	}
}

func TestServerContext_Shutdown(t *testing.T) {
	sc, _ := newTestServerContext(t)

	if sc.IsShutdown() {
		t.Fatal("IsShutdown() = true before Shutdown()")
	}

	if err := sc.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !sc.IsShutdown() {
		t.Error("IsShutdown() = false after Shutdown()")
	}
	select {
	case <-sc.Context().Done():
	default:
		t.Error("Context() not cancelled after Shutdown()")
	}

	// Shutdown is idempotent.
	if err := sc.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestServerContext_MetricsNilWithoutProvider(t *testing.T) {
	sc, _ := newTestServerContext(t)

	if sc.Metrics() != nil {
		t.Error("Metrics() should be nil without an instrumentation provider")
	}
	if sc.Audit() == nil {
		t.Error("Audit() should default to a logger-backed audit logger")
	}
	if sc.Logger() == nil {
		t.Error("Logger() should default to slog.Default()")
	}
}
