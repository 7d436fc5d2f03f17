package extract

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

// SponsorshipInfo holds sponsorship terms evidenced in an email. Every
// field is optional: a field with no evidence in the source text is
// absent, never a placeholder.
type SponsorshipInfo struct {
	// Amount is the offered amount in the given currency.
	Amount *float64 `json:"amount,omitempty"`

	// Currency is the ISO 4217 code, e.g. "USD".
	Currency string `json:"currency,omitempty"`

	// Deliverables lists what the sponsor asks for, verbatim from the email.
	Deliverables []string `json:"deliverables,omitempty"`

	// Deadline is the due date in YYYY-MM-DD form.
	Deadline string `json:"deadline,omitempty"`
}

// Empty reports whether no field carries a value.
func (s *SponsorshipInfo) Empty() bool {
	return s.Amount == nil && s.Currency == "" && len(s.Deliverables) == 0 && s.Deadline == ""
}

// MalformedExtractionError reports a completion that did not conform
// to the extraction schema. The email document is left untouched.
type MalformedExtractionError struct {
	EmailID string
	Reason  string
}

func (e *MalformedExtractionError) Error() string {
	return fmt.Sprintf("malformed extraction for email %s: %s", e.EmailID, e.Reason)
}

// Message returns a user-facing description without internal detail.
func (e *MalformedExtractionError) Message() string {
	return "The email could not be analyzed for sponsorship terms. Please try again."
}

const systemInstruction = `You extract sponsorship terms from emails. Report only what the email explicitly states. Omit any field the email gives no value for; never guess or fill in placeholders. Respond with JSON only.`

var responseSchema = &nlu.Schema{
	Type: nlu.TypeObject,
	Properties: map[string]*nlu.Schema{
		"amount": {
			Type:        nlu.TypeNumber,
			Description: "Offered amount as a number, only if the email states one.",
		},
		"currency": {
			Type:        nlu.TypeString,
			Description: "ISO 4217 currency code for the amount, e.g. USD. Omit if no amount or currency is stated. A $ sign means USD.",
		},
		"deliverables": {
			Type:        nlu.TypeArray,
			Description: "Deliverables the sponsor asks for, one entry per deliverable, only those explicitly stated.",
			Items:       &nlu.Schema{Type: nlu.TypeString},
		},
		"deadline": {
			Type:        nlu.TypeString,
			Description: "Due date in YYYY-MM-DD form, only if the email states one.",
		},
	},
}

// Engine extracts sponsorship terms from an email and persists them
// under the email's sponsorship field. Extraction is independent of
// classification: the two may run concurrently on the same email and
// neither overwrites the other's field.
type Engine struct {
	capability nlu.Capability
	logger     *slog.Logger

	// Notifier, when set, observes operation outcomes. It is never
	// required for correctness.
	Notifier notify.Notifier
}

// NewEngine creates an extraction engine backed by the given language
// capability.
func NewEngine(capability nlu.Capability, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		capability: capability,
		logger:     logging.WithEngine(logger, "extract"),
	}
}

// Extract pulls sponsorship terms out of the email identified by
// emailID and stores them. It returns store.ErrNotFound when no such
// email exists and a MalformedExtractionError when the completion does
// not conform to the schema.
func (e *Engine) Extract(ctx context.Context, ns store.Namespace, emailID string) (*SponsorshipInfo, error) {
	info, err := e.extract(ctx, ns, emailID)
	if e.Notifier != nil {
		e.Notifier.Notify(ctx, notify.Event{
			Operation: "extract",
			Tenant:    ns.Tenant(),
			EmailID:   emailID,
			Err:       err,
		})
	}
	return info, err
}

func (e *Engine) extract(ctx context.Context, ns store.Namespace, emailID string) (*SponsorshipInfo, error) {
	email, err := inbox.Get(ctx, ns, emailID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := e.capability.Complete(ctx, nlu.Request{
		System:         systemInstruction,
		Prompt:         buildPrompt(email),
		ResponseSchema: responseSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract from email %s: %w", emailID, err)
	}

	info, err := decodeResult(emailID, raw)
	if err != nil {
		return nil, err
	}

	if _, err := ns.Merge(ctx, store.CollectionEmails, emailID, store.Fields{
		inbox.FieldSponsorship: info.fields(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store extraction for email %s: %w", emailID, err)
	}

	e.logger.Info("sponsorship terms extracted",
		logging.Tenant(ns.Tenant()),
		logging.Email(emailID),
		slog.Bool("empty", info.Empty()),
		slog.Duration(logging.KeyDuration, time.Since(start)),
	)
	return info, nil
}

// decodeResult enforces shape conformance on the completion. Unknown
// fields, wrong types and malformed dates are all rejected rather than
// coerced.
func decodeResult(emailID string, raw json.RawMessage) (*SponsorshipInfo, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()

	var info SponsorshipInfo
	if err := dec.Decode(&info); err != nil {
		return nil, &MalformedExtractionError{EmailID: emailID, Reason: err.Error()}
	}

	if info.Deadline != "" {
		if _, err := time.Parse("2006-01-02", info.Deadline); err != nil {
			return nil, &MalformedExtractionError{
				EmailID: emailID,
				Reason:  fmt.Sprintf("deadline %q is not a YYYY-MM-DD date", info.Deadline),
			}
		}
	}
	for _, d := range info.Deliverables {
		if strings.TrimSpace(d) == "" {
			return nil, &MalformedExtractionError{EmailID: emailID, Reason: "empty deliverable entry"}
		}
	}
	return &info, nil
}

// fields returns the store representation. Absent fields stay absent
// in the stored document as well.
func (s *SponsorshipInfo) fields() store.Fields {
	fields := store.Fields{}
	if s.Amount != nil {
		fields["amount"] = *s.Amount
	}
	if s.Currency != "" {
		fields["currency"] = s.Currency
	}
	if len(s.Deliverables) > 0 {
		fields["deliverables"] = append([]string(nil), s.Deliverables...)
	}
	if s.Deadline != "" {
		fields["deadline"] = s.Deadline
	}
	return fields
}

func buildPrompt(email *inbox.Email) string {
	var b strings.Builder
	b.WriteString("Extract sponsorship terms from this email.\n\n")
	fmt.Fprintf(&b, "From: %s\n", email.From)
	fmt.Fprintf(&b, "Subject: %s\n\n", email.Subject)
	b.WriteString(email.Body)
	return b.String()
}
