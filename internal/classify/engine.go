package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inboxpilot/inboxpilot/internal/inbox"
	"github.com/inboxpilot/inboxpilot/internal/logging"
	"github.com/inboxpilot/inboxpilot/internal/nlu"
	"github.com/inboxpilot/inboxpilot/internal/notify"
	"github.com/inboxpilot/inboxpilot/internal/store"
)

// Labels the engine may assign. The set is closed: any completion
// outside it is rejected rather than stored.
const (
	LabelSponsorship   = "sponsorship"
	LabelNewsletter    = "newsletter"
	LabelPersonal      = "personal"
	LabelTransactional = "transactional"
	LabelSupport       = "support"
	LabelSpam          = "spam"
	LabelOther         = "other"
)

// Labels lists every assignable label in a stable order.
var Labels = []string{
	LabelSponsorship,
	LabelNewsletter,
	LabelPersonal,
	LabelTransactional,
	LabelSupport,
	LabelSpam,
	LabelOther,
}

const systemInstruction = `You are an email triage assistant. Classify the email into exactly one category. Respond with JSON only.`

// Engine assigns one label from the closed set to an email and
// persists it with a field-scoped merge, so concurrent extraction or
// read-state updates on the same email are never overwritten.
type Engine struct {
	capability nlu.Capability
	logger     *slog.Logger

	// Notifier, when set, observes operation outcomes. It is never
	// required for correctness.
	Notifier notify.Notifier
}

// NewEngine creates a classification engine backed by the given
// language capability.
func NewEngine(capability nlu.Capability, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		capability: capability,
		logger:     logging.WithEngine(logger, "classify"),
	}
}

type labelResult struct {
	Label string `json:"label"`
}

var responseSchema = &nlu.Schema{
	Type: nlu.TypeObject,
	Properties: map[string]*nlu.Schema{
		"label": {
			Type:        nlu.TypeString,
			Description: "The single category that best describes the email.",
			Enum:        Labels,
		},
	},
	Required: []string{"label"},
}

// Classify labels the email identified by emailID in the tenant
// namespace and stores the result. It returns store.ErrNotFound when
// no such email exists. Re-running on an already classified email
// overwrites the previous label.
func (e *Engine) Classify(ctx context.Context, ns store.Namespace, emailID string) (string, error) {
	label, err := e.classify(ctx, ns, emailID)
	if e.Notifier != nil {
		e.Notifier.Notify(ctx, notify.Event{
			Operation: "classify",
			Tenant:    ns.Tenant(),
			EmailID:   emailID,
			Err:       err,
		})
	}
	return label, err
}

func (e *Engine) classify(ctx context.Context, ns store.Namespace, emailID string) (string, error) {
	email, err := inbox.Get(ctx, ns, emailID)
	if err != nil {
		return "", err
	}

	start := time.Now()
	raw, err := e.capability.Complete(ctx, nlu.Request{
		System:         systemInstruction,
		Prompt:         buildPrompt(email),
		ResponseSchema: responseSchema,
	})
	if err != nil {
		return "", fmt.Errorf("failed to classify email %s: %w", emailID, err)
	}

	var result labelResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("malformed classification for email %s: %w", emailID, err)
	}
	label := strings.TrimSpace(result.Label)
	if !validLabel(label) {
		return "", fmt.Errorf("classification for email %s returned unknown label %q", emailID, label)
	}

	if _, err := ns.Merge(ctx, store.CollectionEmails, emailID, store.Fields{
		inbox.FieldClassification: label,
	}); err != nil {
		return "", fmt.Errorf("failed to store classification for email %s: %w", emailID, err)
	}

	e.logger.Info("email classified",
		logging.Tenant(ns.Tenant()),
		logging.Email(emailID),
		logging.Label(label),
		slog.Duration(logging.KeyDuration, time.Since(start)),
	)
	return label, nil
}

func validLabel(label string) bool {
	for _, l := range Labels {
		if label == l {
			return true
		}
	}
	return false
}

func buildPrompt(email *inbox.Email) string {
	var b strings.Builder
	b.WriteString("Classify this email.\n\n")
	fmt.Fprintf(&b, "From: %s\n", email.From)
	fmt.Fprintf(&b, "Subject: %s\n\n", email.Subject)
	b.WriteString(email.Body)
	return b.String()
}
