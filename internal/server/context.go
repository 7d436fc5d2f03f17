package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/inboxpilot/inboxpilot/internal/classify"
	"github.com/inboxpilot/inboxpilot/internal/extract"
	"github.com/inboxpilot/inboxpilot/internal/instrumentation"
	"github.com/inboxpilot/inboxpilot/internal/link"
	"github.com/inboxpilot/inboxpilot/internal/sortcmd"
	"github.com/inboxpilot/inboxpilot/internal/store"
	"github.com/inboxpilot/inboxpilot/internal/tenant"
)

// ServerContext holds the shared dependencies for the MCP server.
// Every tool handler reaches its engines and the document store
// through this context.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	store    store.Store
	resolver *tenant.Resolver

	classifier *classify.Engine
	extractor  *extract.Engine
	compiler   *sortcmd.Compiler
	links      *link.Manager

	provider *instrumentation.Provider
	audit    *instrumentation.AuditLogger
	logger   *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// Deps bundles the dependencies a ServerContext is built from.
type Deps struct {
	Store      store.Store
	Resolver   *tenant.Resolver
	Classifier *classify.Engine
	Extractor  *extract.Engine
	Compiler   *sortcmd.Compiler
	Links      *link.Manager
	Provider   *instrumentation.Provider
	Audit      *instrumentation.AuditLogger
	Logger     *slog.Logger
}

// NewServerContext creates a new server context.
func NewServerContext(ctx context.Context, deps Deps) *ServerContext {
	shutdownCtx, cancel := context.WithCancel(ctx)

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Audit == nil {
		deps.Audit = instrumentation.NewAuditLogger(deps.Logger)
	}

	return &ServerContext{
		ctx:        shutdownCtx,
		cancel:     cancel,
		store:      deps.Store,
		resolver:   deps.Resolver,
		classifier: deps.Classifier,
		extractor:  deps.Extractor,
		compiler:   deps.Compiler,
		links:      deps.Links,
		provider:   deps.Provider,
		audit:      deps.Audit,
		logger:     deps.Logger,
	}
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Namespace resolves an external identity to its tenant-scoped store
// handle.
func (sc *ServerContext) Namespace(ctx context.Context, externalID string) (store.Namespace, error) {
	res, err := sc.resolver.Resolve(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return res.Namespace, nil
}

// Store returns the document store.
func (sc *ServerContext) Store() store.Store {
	return sc.store
}

// Classifier returns the classification engine.
func (sc *ServerContext) Classifier() *classify.Engine {
	return sc.classifier
}

// Extractor returns the extraction engine.
func (sc *ServerContext) Extractor() *extract.Engine {
	return sc.extractor
}

// Compiler returns the sort-command compiler.
func (sc *ServerContext) Compiler() *sortcmd.Compiler {
	return sc.compiler
}

// Links returns the account link manager.
func (sc *ServerContext) Links() *link.Manager {
	return sc.links
}

// Metrics returns the metrics recorder, or nil when instrumentation is
// not configured.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	if sc.provider == nil {
		return nil
	}
	return sc.provider.Metrics()
}

// Audit returns the audit logger.
func (sc *ServerContext) Audit() *instrumentation.AuditLogger {
	return sc.audit
}

// Logger returns the structured logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// IsShutdown returns whether the server has been shutdown.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	if sc.links != nil {
		sc.links.Close()
	}
	return nil
}
