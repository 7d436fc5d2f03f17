package notify

import (
	"context"
	"log/slog"

	"github.com/inboxpilot/inboxpilot/internal/logging"
)

// Event describes a completed or failed engine operation.
type Event struct {
	// Operation names what ran, e.g. "classify" or "extract".
	Operation string

	// Tenant is the canonical tenant identifier.
	Tenant string

	// EmailID is set for operations scoped to one email.
	EmailID string

	// Err is non-nil when the operation failed.
	Err error
}

// Notifier observes engine operation outcomes. Implementations must
// return quickly and never fail the operation; delivery is
// best-effort.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Notify(ctx context.Context, event Event) {}

// Slog logs every event through a structured logger.
type Slog struct {
	Logger *slog.Logger
}

// NewSlog creates a logging notifier.
func NewSlog(logger *slog.Logger) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{Logger: logger}
}

func (s *Slog) Notify(ctx context.Context, event Event) {
	attrs := []any{
		logging.Operation(event.Operation),
		logging.Tenant(event.Tenant),
	}
	if event.EmailID != "" {
		attrs = append(attrs, logging.Email(event.EmailID))
	}
	if event.Err != nil {
		attrs = append(attrs, logging.Status(logging.StatusError), logging.Err(event.Err))
		s.Logger.WarnContext(ctx, "operation failed", attrs...)
		return
	}
	attrs = append(attrs, logging.Status(logging.StatusSuccess))
	s.Logger.InfoContext(ctx, "operation completed", attrs...)
}
