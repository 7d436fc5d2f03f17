package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxpilot/inboxpilot/internal/inbox"
	"github.com/inboxpilot/inboxpilot/internal/nlu"
	"github.com/inboxpilot/inboxpilot/internal/store"
)

// stubCapability returns a canned completion, optionally derived from
// the request, and records what it was asked.
type stubCapability struct {
	response json.RawMessage
	err      error
	requests []nlu.Request
}

func (s *stubCapability) ModelVersion() string { return "stub-1" }

func (s *stubCapability) Complete(ctx context.Context, req nlu.Request) (json.RawMessage, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func seedEmail(t *testing.T, ns store.Namespace, id, subject, body string) {
	t.Helper()
	_, err := ns.Merge(context.Background(), store.CollectionEmails, id, store.Fields{
		inbox.FieldSubject:    subject,
		inbox.FieldBody:       body,
		inbox.FieldFrom:       "sender@example.com",
		inbox.FieldReceivedAt: "2025-02-10T09:00:00Z",
		inbox.FieldRead:       false,
	})
	require.NoError(t, err)
}

func TestClassifyStoresLabel(t *testing.T) {
	ns := store.NewMemoryStore().Namespace("tenant-a")
	seedEmail(t, ns, "em-1", "Partnership opportunity", "We'd love to sponsor your channel.")

	stub := &stubCapability{response: json.RawMessage(`{"label":"sponsorship"}`)}
	engine := NewEngine(stub, nil)

	label, err := engine.Classify(context.Background(), ns, "em-1")
	require.NoError(t, err)
	assert.Equal(t, LabelSponsorship, label)

	doc, err := ns.Get(context.Background(), store.CollectionEmails, "em-1")
	require.NoError(t, err)
	assert.Equal(t, LabelSponsorship, doc.String(inbox.FieldClassification))

	// The merge is field-scoped, so the original content survives.
	assert.Equal(t, "Partnership opportunity", doc.String(inbox.FieldSubject))
}

func TestClassifyPromptCarriesEmailContent(t *testing.T) {
	ns := store.NewMemoryStore().Namespace("tenant-a")
	seedEmail(t, ns, "em-1", "Invoice #42", "Your payment is due.")

	stub := &stubCapability{response: json.RawMessage(`{"label":"transactional"}`)}
	engine := NewEngine(stub, nil)

	_, err := engine.Classify(context.Background(), ns, "em-1")
	require.NoError(t, err)

	require.Len(t, stub.requests, 1)
	req := stub.requests[0]
	assert.Contains(t, req.Prompt, "Invoice #42")
	assert.Contains(t, req.Prompt, "Your payment is due.")
	assert.Contains(t, req.Prompt, "sender@example.com")
	require.NotNil(t, req.ResponseSchema)
	assert.Equal(t, Labels, req.ResponseSchema.Properties["label"].Enum)
}

func TestClassifyUnknownEmail(t *testing.T) {
	ns := store.NewMemoryStore().Namespace("tenant-a")
	engine := NewEngine(&stubCapability{}, nil)

	_, err := engine.Classify(context.Background(), ns, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClassifyRejectsUnknownLabel(t *testing.T) {
	ns := store.NewMemoryStore().Namespace("tenant-a")
	seedEmail(t, ns, "em-1", "Hello", "Just checking in.")

	stub := &stubCapability{response: json.RawMessage(`{"label":"promotional"}`)}
	engine := NewEngine(stub, nil)

	_, err := engine.Classify(context.Background(), ns, "em-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promotional")

	// Nothing out of the closed set is ever stored.
	doc, err := ns.Get(context.Background(), store.CollectionEmails, "em-1")
	require.NoError(t, err)
	assert.False(t, doc.Has(inbox.FieldClassification))
}

func TestClassifyCompletionFailure(t *testing.T) {
	ns := store.NewMemoryStore().Namespace("tenant-a")
	seedEmail(t, ns, "em-1", "Hello", "Body")

	stub := &stubCapability{err: errors.New("upstream timeout")}
	engine := NewEngine(stub, nil)

	_, err := engine.Classify(context.Background(), ns, "em-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClassifyMalformedCompletion(t *testing.T) {
	ns := store.NewMemoryStore().Namespace("tenant-a")
	seedEmail(t, ns, "em-1", "Hello", "Body")

	stub := &stubCapability{response: json.RawMessage(`not json`)}
	engine := NewEngine(stub, nil)

	_, err := engine.Classify(context.Background(), ns, "em-1")
	assert.Error(t, err)
}

func TestClassifyReclassifiesOverwrites(t *testing.T) {
	ns := store.NewMemoryStore().Namespace("tenant-a")
	seedEmail(t, ns, "em-1", "Weekly digest", "This week in Go.")

	stub := &stubCapability{response: json.RawMessage(`{"label":"newsletter"}`)}
	engine := NewEngine(stub, nil)

	for i := 0; i < 2; i++ {
		label, err := engine.Classify(context.Background(), ns, "em-1")
		require.NoError(t, err, fmt.Sprintf("run %d", i))
		assert.Equal(t, LabelNewsletter, label)
	}

	doc, err := ns.Get(context.Background(), store.CollectionEmails, "em-1")
	require.NoError(t, err)
	assert.Equal(t, LabelNewsletter, doc.String(inbox.FieldClassification))
}

func TestLabelsAreClosedSet(t *testing.T) {
	assert.Len(t, Labels, 7)
	for _, label := range Labels {
		assert.True(t, validLabel(label))
	}
	assert.False(t, validLabel(""))
	assert.False(t, validLabel("Sponsorship"))
}
