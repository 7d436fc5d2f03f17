package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/inboxpilot/inboxpilot/internal/logging"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// DefaultGeminiTimeout bounds a single completion call when the caller
// supplies no deadline of its own.
const DefaultGeminiTimeout = 60 * time.Second

// GeminiConfig holds settings for the Gemini-backed capability.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API (GEMINI_API_KEY).
	APIKey string

	// Model is the model identifier (default: DefaultGeminiModel).
	Model string

	// Timeout bounds each completion call (default: DefaultGeminiTimeout).
	Timeout time.Duration
}

// Gemini implements Capability on top of the Gemini API with structured
// output enforcement. Temperature is pinned to zero so identical input
// yields stable output for a given model version.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGemini creates a Gemini-backed capability.
func NewGemini(ctx context.Context, config GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultGeminiModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultGeminiTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   config.Model,
		timeout: config.Timeout,
		logger:  logger,
	}, nil
}

// ModelVersion returns the configured model identifier.
func (g *Gemini) ModelVersion() string {
	return g.model
}

// Complete runs one structured completion.
func (g *Gemini) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	// Apply the default timeout only when the caller has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.ResponseSchema != nil {
		config.ResponseSchema = toGenaiSchema(req.ResponseSchema)
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)
	if err != nil {
		g.logger.Warn("Gemini completion failed",
			slog.String(logging.KeyModel, g.model),
			logging.Err(err),
		)
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("no completion returned")
	}

	g.logger.Debug("Gemini completion",
		slog.String(logging.KeyModel, g.model),
		slog.Duration(logging.KeyDuration, time.Since(start)),
		slog.Int("response_len", len(text)),
	)
	return json.RawMessage(text), nil
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeArray:
		out.Type = genai.TypeArray
	case TypeString:
		out.Type = genai.TypeString
	case TypeNumber:
		out.Type = genai.TypeNumber
	case TypeBoolean:
		out.Type = genai.TypeBoolean
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	return out
}
