package nlu

import (
	"context"
	"encoding/json"
)

// Schema value types for structured responses.
const (
	TypeObject  = "object"
	TypeArray   = "array"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
)

// Schema declares the structural shape a capability response must
// conform to. It is deliberately minimal: the engines re-check the
// returned JSON against their own expectations regardless of how well
// the provider enforces the schema.
type Schema struct {
	Type        string
	Description string
	Properties  map[string]*Schema
	Items       *Schema
	Enum        []string
	Required    []string
}

// Request is one language-understanding call. The response must be a
// JSON document conforming to ResponseSchema.
type Request struct {
	// System is the instruction framing the task.
	System string

	// Prompt is the user-visible content (email text, command text,
	// grounding sample).
	Prompt string

	// ResponseSchema declares the required output shape.
	ResponseSchema *Schema
}

// Capability is the language-understanding black box the engines
// delegate to. Implementations may be nondeterministic; the engines
// pin temperature and re-validate output, and tests substitute a
// deterministic stub.
type Capability interface {
	// ModelVersion identifies the underlying model so callers can
	// reason about output stability across calls.
	ModelVersion() string

	// Complete runs one request and returns the raw JSON response.
	// Timeouts and transport failures are transient: the caller may
	// retry the whole operation.
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}
