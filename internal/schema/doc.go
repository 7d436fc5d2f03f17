// Package schema validates all inbound structured payloads before any
// side effect occurs.
//
// One validation function is exposed per shape (calendar event, task,
// email reference, sort rule, linking payload). Validation is pure: it
// coerces the untyped payload into the declared shape, rejects unknown
// fields, applies per-field bounds, and returns either the typed value
// or a ValidationError carrying the full field-level violation list.
// It never touches storage.
//
// Partial shapes (updates) make every field optional but keep the same
// per-field constraints and still reject unknown fields.
package schema
