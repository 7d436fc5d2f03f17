package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// HTTPServerConfig configures the streamable HTTP transport.
type HTTPServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// SessionTimeout is how long an idle session is kept before its
	// identity binding is dropped. Zero uses the session manager
	// default.
	SessionTimeout time.Duration

	// Logger for transport-level events. Defaults to slog.Default().
	Logger *slog.Logger
}

// HTTPServer serves the MCP protocol over streamable HTTP. Requests
// are tracked by the session manager so the active session gauge
// reflects distinct authenticated clients, and the health endpoints
// share the same mux.
type HTTPServer struct {
	mcpServer     *mcpserver.MCPServer
	serverContext *ServerContext
	sessions      *SessionManager
	httpServer    *http.Server
	config        HTTPServerConfig
	logger        *slog.Logger
}

// NewHTTPServer creates the streamable HTTP transport for the given
// MCP server.
func NewHTTPServer(mcpSrv *mcpserver.MCPServer, sc *ServerContext, config HTTPServerConfig) *HTTPServer {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := config.SessionTimeout
	if timeout <= 0 {
		timeout = defaultSessionTimeout
	}

	sessions := NewSessionManagerWithLogger(timeout, logger)
	sessions.SetMetrics(sc.Metrics())

	return &HTTPServer{
		mcpServer:     mcpSrv,
		serverContext: sc,
		sessions:      sessions,
		config:        config,
		logger:        logger,
	}
}

// Start begins serving and blocks until the server stops.
func (s *HTTPServer) Start() error {
	mux := http.NewServeMux()

	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath("/mcp"),
	)
	mux.Handle("/mcp", s.trackSessions(streamable))

	health := NewHealthChecker(s.serverContext)
	health.RegisterHealthEndpoints(mux)

	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("HTTP transport listening", "addr", s.config.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and the session manager.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.sessions.Stop()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
	}
	return nil
}

// Sessions exposes the session manager, mainly for tests.
func (s *HTTPServer) Sessions() *SessionManager {
	return s.sessions
}

// trackSessions derives a session ID from the Authorization header and
// binds it to the identity a fronting auth proxy asserts via
// X-Forwarded-User. Requests without an Authorization header pass
// through untracked.
func (s *HTTPServer) trackSessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionID, err := s.sessions.ResolveSessionID(r); err == nil {
			user := r.Header.Get("X-Forwarded-User")
			if user != "" || s.sessions.IdentityForSession(sessionID) == "" {
				s.sessions.BindSession(sessionID, user)
			}
		}
		next.ServeHTTP(w, r)
	})
}
