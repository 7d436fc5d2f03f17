package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation = "operation"
	KeyEngine    = "engine"
	KeyTenant    = "tenant_hash"
	KeyEmail     = "email_id"
	KeyProvider  = "provider"
	KeyDuration  = "duration"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyTool      = "tool"
	KeyLabel     = "label"
	KeyModel     = "model"
)

// Status values for consistent logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithEngine returns a logger with the engine attribute set.
func WithEngine(logger *slog.Logger, engine string) *slog.Logger {
	return logger.With(slog.String(KeyEngine, engine))
}

// WithTool returns a logger with the tool attribute set.
func WithTool(logger *slog.Logger, tool string) *slog.Logger {
	return logger.With(slog.String(KeyTool, tool))
}

// WithTenant returns a logger carrying the anonymized tenant identifier.
func WithTenant(logger *slog.Logger, tenant string) *slog.Logger {
	return logger.With(Tenant(tenant))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Email returns a slog attribute for the email document identifier.
func Email(id string) slog.Attr {
	return slog.String(KeyEmail, id)
}

// Provider returns a slog attribute for the identity provider name.
func Provider(provider string) slog.Attr {
	return slog.String(KeyProvider, provider)
}

// Label returns a slog attribute for a classification label.
func Label(label string) slog.Attr {
	return slog.String(KeyLabel, label)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted
// from output, so Err(maybeNilErr) is always safe to pass.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeID returns a hashed representation of a tenant or user
// identifier for logging purposes. This allows correlation of log
// entries without exposing the raw identity.
func AnonymizeID(id string) string {
	if id == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(id))
	return "t:" + hex.EncodeToString(hash[:8])
}

// Tenant returns a slog attribute with the anonymized tenant identifier.
func Tenant(id string) slog.Attr {
	return slog.String(KeyTenant, AnonymizeID(id))
}

// SanitizeToken returns a masked version of a token for logging.
// It returns a length indicator without exposing any token content,
// as even partial token prefixes can aid attacks.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
