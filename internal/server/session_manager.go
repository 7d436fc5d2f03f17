package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/inboxpilot/inboxpilot/internal/instrumentation"
)

// sessionInfo tracks session metadata for cleanup
type sessionInfo struct {
	externalID string
	lastAccess time.Time
}

// SessionManager maps transport sessions to external identities so
// several assistant users can share one HTTP server instance. Each
// Bearer token yields a stable session ID; the identity bound to it is
// what the tenant resolver receives.
type SessionManager struct {
	sessions       map[string]*sessionInfo
	mu             sync.RWMutex
	cleanupTicker  *time.Ticker
	cleanupDone    chan bool
	sessionTimeout time.Duration
	logger         *slog.Logger
	metrics        *instrumentation.Metrics
}

// defaultSessionTimeout is how long an idle session is kept.
const defaultSessionTimeout = 24 * time.Hour

// NewSessionManager creates a session manager with the default timeout.
func NewSessionManager() *SessionManager {
	return NewSessionManagerWithLogger(defaultSessionTimeout, slog.Default())
}

// NewSessionManagerWithLogger creates a session manager with a custom
// timeout and logger.
func NewSessionManagerWithLogger(timeout time.Duration, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &SessionManager{
		sessions:       make(map[string]*sessionInfo),
		cleanupTicker:  time.NewTicker(10 * time.Minute),
		cleanupDone:    make(chan bool),
		sessionTimeout: timeout,
		logger:         logger,
	}

	go m.cleanupExpiredSessions()

	return m
}

// SetMetrics wires the active-session gauge. Safe to leave unset.
func (m *SessionManager) SetMetrics(metrics *instrumentation.Metrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = metrics
}

// ErrNoAuthorizationHeader is returned when no Authorization header is provided
var ErrNoAuthorizationHeader = errors.New("no authorization header provided")

// ResolveSessionID derives the session ID for an HTTP request from its
// Authorization header. The same Bearer token always maps to the same
// session.
func (m *SessionManager) ResolveSessionID(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrNoAuthorizationHeader
	}

	return m.generateSessionID(authHeader), nil
}

// IdentityForSession returns the external identity bound to a session,
// or "" when the session is unknown.
func (m *SessionManager) IdentityForSession(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.sessions[sessionID]; ok {
		info.lastAccess = time.Now()
		return info.externalID
	}
	return ""
}

// BindSession associates an external identity with a session ID.
func (m *SessionManager) BindSession(sessionID, externalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, existed := m.sessions[sessionID]
	m.sessions[sessionID] = &sessionInfo{
		externalID: externalID,
		lastAccess: time.Now(),
	}
	if !existed && m.metrics != nil {
		m.metrics.IncrementActiveSessions(context.Background())
	}
}

// generateSessionID creates a stable session ID from the auth token
func (m *SessionManager) generateSessionID(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// RemoveSession removes a session from the manager
func (m *SessionManager) RemoveSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; ok {
		delete(m.sessions, sessionID)
		if m.metrics != nil {
			m.metrics.DecrementActiveSessions(context.Background())
		}
	}
}

// ListSessions returns all active session IDs
func (m *SessionManager) ListSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]string, 0, len(m.sessions))
	for sessionID := range m.sessions {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// cleanupExpiredSessions periodically removes expired sessions
func (m *SessionManager) cleanupExpiredSessions() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.mu.Lock()
			now := time.Now()
			expiredCount := 0
			for sessionID, info := range m.sessions {
				if now.Sub(info.lastAccess) > m.sessionTimeout {
					delete(m.sessions, sessionID)
					if m.metrics != nil {
						m.metrics.DecrementActiveSessions(context.Background())
					}
					expiredCount++
				}
			}
			m.mu.Unlock()
			if expiredCount > 0 {
				m.logger.Info("Cleaned up expired sessions", "count", expiredCount)
			}
		case <-m.cleanupDone:
			return
		}
	}
}

// Stop stops the session cleanup goroutine
func (m *SessionManager) Stop() {
	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}
	if m.cleanupDone != nil {
		close(m.cleanupDone)
	}
}
