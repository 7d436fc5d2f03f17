package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlogNotifySuccess(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewSlog(slog.New(slog.NewTextHandler(&buf, nil)))

	notifier.Notify(context.Background(), Event{
		Operation: "classify",
		Tenant:    "tenant-a",
		EmailID:   "em-1",
	})

	out := buf.String()
	assert.Contains(t, out, "operation completed")
	assert.Contains(t, out, "classify")
	assert.Contains(t, out, "em-1")
	// Tenant identifiers are anonymized before logging.
	assert.NotContains(t, out, "tenant-a")
}

func TestSlogNotifyFailure(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewSlog(slog.New(slog.NewTextHandler(&buf, nil)))

	notifier.Notify(context.Background(), Event{
		Operation: "extract",
		Tenant:    "tenant-a",
		EmailID:   "em-1",
		Err:       errors.New("upstream timeout"),
	})

	out := buf.String()
	assert.Contains(t, out, "operation failed")
	assert.Contains(t, out, "upstream timeout")
}

func TestNoop(t *testing.T) {
	Noop{}.Notify(context.Background(), Event{Operation: "classify"})
}
