package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/inboxpilot/inboxpilot/internal/store"
)

// Email field names as stored in the document store. Engines write
// field-scoped merges keyed by these names.
const (
	FieldSubject        = "subject"
	FieldBody           = "body"
	FieldFrom           = "from"
	FieldReceivedAt     = "receivedAt"
	FieldRead           = "read"
	FieldClassification = "classification"
	FieldSponsorship    = "sponsorship"
)

// Email is the in-memory view of one stored email document.
// Classification and Sponsorship are absent until the respective
// engine has run; they are never defaulted.
type Email struct {
	ID             string
	Subject        string
	Body           string
	From           string
	ReceivedAt     time.Time
	Read           bool
	Classification string // empty until classified
}

// FromDocument builds an Email from a stored document.
func FromDocument(doc *store.Document) (*Email, error) {
	e := &Email{
		ID:             doc.ID,
		Subject:        doc.String(FieldSubject),
		Body:           doc.String(FieldBody),
		From:           doc.String(FieldFrom),
		Read:           doc.Bool(FieldRead),
		Classification: doc.String(FieldClassification),
	}
	if raw := doc.String(FieldReceivedAt); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("email %s has invalid receivedAt: %w", doc.ID, err)
		}
		e.ReceivedAt = t
	}
	return e, nil
}

// Get loads one email from the tenant namespace.
func Get(ctx context.Context, ns store.Namespace, emailID string) (*Email, error) {
	doc, err := ns.Get(ctx, store.CollectionEmails, emailID)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// Recent returns the tenant's most recent emails, newest first.
func Recent(ctx context.Context, ns store.Namespace, limit int) ([]*Email, error) {
	docs, err := ns.Query(ctx, store.Query{
		Collection: store.CollectionEmails,
		OrderBy:    FieldReceivedAt,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	emails := make([]*Email, 0, len(docs))
	for _, doc := range docs {
		e, err := FromDocument(doc)
		if err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, nil
}

// MarkRead updates the read flag on one email. The update is
// field-scoped so it never races with classification or extraction.
func MarkRead(ctx context.Context, ns store.Namespace, emailID string, read bool) error {
	if _, err := ns.Get(ctx, store.CollectionEmails, emailID); err != nil {
		return err
	}
	_, err := ns.Merge(ctx, store.CollectionEmails, emailID, store.Fields{FieldRead: read})
	return err
}
