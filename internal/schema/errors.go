package schema

import (
	"fmt"
	"strings"
)

// FieldViolation describes one failed constraint during validation.
type FieldViolation struct {
	// Field is the JSON path of the offending field.
	Field string `json:"field"`

	// Constraint names the violated constraint (e.g. "required",
	// "max=200", "oneof").
	Constraint string `json:"constraint"`

	// Value is the offending value, if one was supplied.
	Value any `json:"value,omitempty"`
}

// ValidationError carries the full field-level list of violations for a
// rejected payload. It is always surfaced to the caller and never
// retried automatically.
type ValidationError struct {
	Shape      string
	Violations []FieldViolation
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s: %s", v.Field, v.Constraint))
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Shape, strings.Join(parts, "; "))
}

// Message returns the user-facing description of the failure.
func (e *ValidationError) Message() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("The field %q is invalid. Please correct it and try again.", e.Violations[0].Field)
	}
	return fmt.Sprintf("%d fields are invalid. Please correct them and try again.", len(e.Violations))
}

func violation(field, constraint string, value any) *ValidationError {
	return &ValidationError{
		Violations: []FieldViolation{{Field: field, Constraint: constraint, Value: value}},
	}
}
