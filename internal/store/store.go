package store

import (
	"context"
	"errors"
	"time"
)

// Collection names used by the assistant core.
const (
	CollectionEmails   = "emails"
	CollectionAccounts = "accounts"
	CollectionSettings = "settings"
	CollectionUsers    = "users"
	CollectionRedirect = "redirects"
)

// SystemNamespace holds tenant catalog documents (user mappings and
// migration redirects). It is not a user-facing tenant namespace.
const SystemNamespace = "system"

// Store backend types selectable at startup.
const (
	StoreTypeMemory = "memory"
	StoreTypeValkey = "valkey"
)

// ErrNotFound is returned when a document does not exist in the
// requested collection of a namespace.
var ErrNotFound = errors.New("document not found")

// ErrUnavailable indicates a transient backend failure. Callers may
// retry the whole operation.
var ErrUnavailable = errors.New("document store unavailable")

// Fields is a partial set of document fields. Values are JSON-compatible:
// string, bool, float64, []string or nested map[string]any.
type Fields map[string]any

// Document is a stored record plus its server-assigned update timestamp.
type Document struct {
	ID        string
	Fields    Fields
	UpdatedAt time.Time
}

// String returns the named field as a string, or "" if absent or not a string.
func (d *Document) String(field string) string {
	s, _ := d.Fields[field].(string)
	return s
}

// Bool returns the named field as a bool, or false if absent.
func (d *Document) Bool(field string) bool {
	b, _ := d.Fields[field].(bool)
	return b
}

// Has reports whether the named field is present.
func (d *Document) Has(field string) bool {
	_, ok := d.Fields[field]
	return ok
}

// Query describes an ordered, bounded read of one collection.
type Query struct {
	Collection string
	// OrderBy names the field to sort on. Backends are only required to
	// support ordering on "receivedAt".
	OrderBy    string
	Descending bool
	Limit      int
}

// Namespace is a handle scoped to exactly one tenant's documents.
// All operations are tenant-isolated; a Namespace can never read or
// write another tenant's collections.
type Namespace interface {
	// Tenant returns the canonical tenant identifier this handle is scoped to.
	Tenant() string

	// Get returns one document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Merge applies a field-scoped partial update, creating the document
	// if it does not exist. Unnamed fields are left untouched, so two
	// concurrent merges on disjoint fields never lose each other's writes.
	// The returned document carries the server-assigned update timestamp.
	Merge(ctx context.Context, collection, id string, fields Fields) (*Document, error)

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Query returns documents ordered and bounded per q.
	Query(ctx context.Context, q Query) ([]*Document, error)
}

// Store mints tenant-scoped namespace handles.
type Store interface {
	Namespace(tenant string) Namespace
}
