package sortcmd

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
	"github.com/inboxpilot/inboxpilot/internal/schema"
	"github.com/inboxpilot/inboxpilot/internal/store"
)

// SampleLimit caps the number of recent emails passed to the model as
// grounding context.
const SampleLimit = 5

// UnsupportedCommandError reports an instruction that does not map to
// any supported sort operation. The compiler never substitutes a
// guess for an instruction it cannot map.
type UnsupportedCommandError struct {
	Text string
}

func (e *UnsupportedCommandError) Error() string {
	return fmt.Sprintf("unsupported sort command: %q", e.Text)
}

// Message returns a user-facing description.
func (e *UnsupportedCommandError) Message() string {
	return "I couldn't understand that sorting instruction. Try something like \"newest first\" or \"show sponsorship emails first\"."
}

const systemInstruction = `You compile a user's sorting instruction for their email inbox into a sort rule. Supported fields: receivedAt, from, subject, classification, read. Supported orders: asc, desc. An optional filter restricts the rule to emails whose field equals a value. If the instruction does not describe a sort over these fields, set supported to false and omit the rule. Never invent a rule for an instruction you cannot map. Respond with JSON only.`

type compileResult struct {
	Supported bool             `json:"supported"`
	Rule      *json.RawMessage `json:"rule,omitempty"`
}

var responseSchema = &nlu.Schema{
	Type: nlu.TypeObject,
	Properties: map[string]*nlu.Schema{
		"supported": {
			Type:        nlu.TypeBoolean,
			Description: "Whether the instruction maps to a supported sort rule.",
		},
		"rule": {
			Type:        nlu.TypeObject,
			Description: "The compiled sort rule. Present only when supported is true.",
			Properties: map[string]*nlu.Schema{
				"field": {
					Type: nlu.TypeString,
					Enum: []string{
						schema.SortFieldReceivedAt,
						schema.SortFieldFrom,
						schema.SortFieldSubject,
						schema.SortFieldClassification,
						schema.SortFieldRead,
					},
				},
				"order": {
					Type: nlu.TypeString,
					Enum: []string{"asc", "desc"},
				},
				"filter": {
					Type:        nlu.TypeObject,
					Description: "Optional restriction to emails whose field equals a value.",
					Properties: map[string]*nlu.Schema{
						"field": {
							Type: nlu.TypeString,
							Enum: []string{
								schema.SortFieldReceivedAt,
								schema.SortFieldFrom,
								schema.SortFieldSubject,
								schema.SortFieldClassification,
								schema.SortFieldRead,
							},
						},
						"equals": {Type: nlu.TypeString},
					},
					Required: []string{"field", "equals"},
				},
			},
			Required: []string{"field", "order"},
		},
	},
	Required: []string{"supported"},
}

// Compiler turns free-text sorting instructions into validated sort
// rules. The model runs at temperature zero, so identical text and
// sample with the same model version compile to the same rule.
type Compiler struct {
	capability nlu.Capability
	logger     *slog.Logger
}

// NewCompiler creates a sort-command compiler backed by the given
// language capability.
func NewCompiler(capability nlu.Capability, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{
		capability: capability,
		logger:     logging.WithEngine(logger, "sortcmd"),
	}
}

// Compile maps the instruction text to a sort rule, using sample as
// grounding context only. It returns a schema.ValidationError for
// blank text and an UnsupportedCommandError when the instruction does
// not describe a supported sort.
func (c *Compiler) Compile(ctx context.Context, text string, sample []*inbox.Email) (*schema.SortRulePayload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &schema.ValidationError{
			Shape: "sortCommand",
			Violations: []schema.FieldViolation{
				{Field: "text", Constraint: "required"},
			},
		}
	}
	if len(sample) > SampleLimit {
		sample = sample[:SampleLimit]
	}

	start := time.Now()
	raw, err := c.capability.Complete(ctx, nlu.Request{
		System:         systemInstruction,
		Prompt:         buildPrompt(text, sample),
		ResponseSchema: responseSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile sort command: %w", err)
	}

	var result compileResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &UnsupportedCommandError{Text: text}
	}
	if !result.Supported || result.Rule == nil {
		c.logger.Info("sort command rejected as unsupported",
			slog.Int("text_len", len(text)),
			slog.Duration(logging.KeyDuration, time.Since(start)),
		)
		return nil, &UnsupportedCommandError{Text: text}
	}

	// The compiled rule passes through the same schema gate as a rule
	// submitted directly by a caller.
	rule, err := schema.ValidateSortRule(*result.Rule)
	if err != nil {
		return nil, &UnsupportedCommandError{Text: text}
	}

	c.logger.Info("sort command compiled",
		slog.String("field", rule.Field),
		slog.String("order", rule.Order),
		slog.Bool("filtered", rule.Filter != nil),
		slog.Duration(logging.KeyDuration, time.Since(start)),
	)
	return rule, nil
}

// CompileForTenant loads the tenant's most recent emails as grounding
// and compiles the instruction against them.
func (c *Compiler) CompileForTenant(ctx context.Context, ns store.Namespace, text string) (*schema.SortRulePayload, error) {
	sample, err := inbox.Recent(ctx, ns, SampleLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load grounding sample: %w", err)
	}
	return c.Compile(ctx, text, sample)
}

// buildPrompt renders the instruction plus a compact view of the
// sample. Bodies are excluded: the sample grounds field names and
// typical values, nothing more.
func buildPrompt(text string, sample []*inbox.Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instruction: %s\n", text)
	if len(sample) > 0 {
		b.WriteString("\nRecent emails (newest first):\n")
		for _, e := range sample {
			fmt.Fprintf(&b, "- from=%s subject=%q receivedAt=%s read=%t",
				e.From, e.Subject, e.ReceivedAt.Format(time.RFC3339), e.Read)
			if e.Classification != "" {
				fmt.Fprintf(&b, " classification=%s", e.Classification)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
