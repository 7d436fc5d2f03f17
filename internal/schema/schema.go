package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Event types accepted by calendar event payloads.
const (
	EventTypeMeeting  = "MEETING"
	EventTypeDeadline = "DEADLINE"
	EventTypeReminder = "REMINDER"
	EventTypeOther    = "OTHER"
)

// EventPayload is a calendar event definition.
type EventPayload struct {
	Title    string `json:"title" validate:"required,min=1,max=200"`
	Type     string `json:"type" validate:"required,oneof=MEETING DEADLINE REMINDER OTHER"`
	StartsAt string `json:"startsAt" validate:"required,rfc3339zone"`
	EndsAt   string `json:"endsAt,omitempty" validate:"omitempty,rfc3339zone"`
	Notes    string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// EventUpdatePayload is a partial event update: every field optional,
// unknown fields rejected.
type EventUpdatePayload struct {
	Title    *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Type     *string `json:"type,omitempty" validate:"omitempty,oneof=MEETING DEADLINE REMINDER OTHER"`
	StartsAt *string `json:"startsAt,omitempty" validate:"omitempty,rfc3339zone"`
	EndsAt   *string `json:"endsAt,omitempty" validate:"omitempty,rfc3339zone"`
	Notes    *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// TaskPayload is a task definition.
type TaskPayload struct {
	Title string `json:"title" validate:"required,min=1,max=200"`
	Notes string `json:"notes,omitempty" validate:"omitempty,max=2000"`
	DueAt string `json:"dueAt,omitempty" validate:"omitempty,rfc3339zone"`
	Done  bool   `json:"done,omitempty"`
}

// TaskUpdatePayload is a partial task update.
type TaskUpdatePayload struct {
	Title *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
	DueAt *string `json:"dueAt,omitempty" validate:"omitempty,rfc3339zone"`
	Done  *bool   `json:"done,omitempty"`
}

// EmailRef references one email document in the caller's namespace.
type EmailRef struct {
	EmailID string `json:"emailId" validate:"required,min=1,max=128"`
}

// Fields a sort rule may sort or filter on.
const (
	SortFieldReceivedAt     = "receivedAt"
	SortFieldFrom           = "from"
	SortFieldSubject        = "subject"
	SortFieldClassification = "classification"
	SortFieldRead           = "read"
)

// SortFilter restricts a sort rule to documents matching one field value.
type SortFilter struct {
	Field  string `json:"field" validate:"required,oneof=receivedAt from subject classification read"`
	Equals string `json:"equals" validate:"required,max=200"`
}

// SortRulePayload is a sort-rule creation request. The command compiler
// produces this same shape, so compiled output is validated here before
// it is returned to a caller.
type SortRulePayload struct {
	Field  string      `json:"field" validate:"required,oneof=receivedAt from subject classification read"`
	Order  string      `json:"order" validate:"required,oneof=asc desc"`
	Filter *SortFilter `json:"filter,omitempty" validate:"omitempty"`
}

// LinkPayload is an account-linking callback payload, carrying the
// provider identity that completed the flow.
type LinkPayload struct {
	Provider          string `json:"provider" validate:"required,min=1,max=64"`
	ProviderAccountID string `json:"providerAccountId" validate:"required,min=1,max=256"`
	Email             string `json:"email,omitempty" validate:"omitempty,email"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report violations by JSON field name, not Go struct field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Date-time fields must be full timestamps with an explicit zone.
	_ = v.RegisterValidation("rfc3339zone", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})

	return v
}

// ValidateEvent validates a calendar event payload.
func ValidateEvent(payload any) (*EventPayload, error) {
	var out EventPayload
	if err := decodeInto("event", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateEventUpdate validates a partial calendar event update.
func ValidateEventUpdate(payload any) (*EventUpdatePayload, error) {
	var out EventUpdatePayload
	if err := decodeInto("event update", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateTask validates a task payload.
func ValidateTask(payload any) (*TaskPayload, error) {
	var out TaskPayload
	if err := decodeInto("task", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateTaskUpdate validates a partial task update.
func ValidateTaskUpdate(payload any) (*TaskUpdatePayload, error) {
	var out TaskUpdatePayload
	if err := decodeInto("task update", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateEmailRef validates an email reference.
func ValidateEmailRef(payload any) (*EmailRef, error) {
	var out EmailRef
	if err := decodeInto("email reference", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateSortRule validates a sort-rule creation payload.
func ValidateSortRule(payload any) (*SortRulePayload, error) {
	var out SortRulePayload
	if err := decodeInto("sort rule", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateLink validates an account-linking payload.
func ValidateLink(payload any) (*LinkPayload, error) {
	var out LinkPayload
	if err := decodeInto("link", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// decodeInto coerces an untyped payload into the target shape, rejecting
// unknown fields, then applies the declared field constraints. It is
// pure: no storage access, no side effects.
func decodeInto(shape string, payload, target any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return violationFor(shape, "", "malformed", nil)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return decodeError(shape, err)
	}

	if err := validate.Struct(target); err != nil {
		return structError(shape, err)
	}
	return nil
}

func decodeError(shape string, err error) error {
	msg := err.Error()
	// json surfaces unknown fields as `json: unknown field "x"`.
	if strings.Contains(msg, "unknown field") {
		field := ""
		if i := strings.Index(msg, `"`); i >= 0 {
			field = strings.Trim(msg[i:], `"`)
		}
		return violationFor(shape, field, "unknown field", nil)
	}
	if typeErr, ok := err.(*json.UnmarshalTypeError); ok {
		return violationFor(shape, typeErr.Field, fmt.Sprintf("expected %s", typeErr.Type), typeErr.Value)
	}
	return violationFor(shape, "", "malformed", nil)
}

func structError(shape string, err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return violationFor(shape, "", "malformed", nil)
	}

	out := &ValidationError{Shape: shape}
	for _, fe := range errs {
		constraint := fe.Tag()
		if fe.Param() != "" {
			constraint = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		out.Violations = append(out.Violations, FieldViolation{
			Field:      fieldPath(fe.Namespace()),
			Constraint: constraint,
			Value:      fe.Value(),
		})
	}
	return out
}

func violationFor(shape, field, constraint string, value any) *ValidationError {
	ve := violation(field, constraint, value)
	ve.Shape = shape
	return ve
}

// fieldPath strips the struct name prefix from a validator namespace,
// leaving the JSON path ("EventPayload.title" -> "title").
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
