package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	ns := NewMemoryStore().Namespace("t1")

	_, err := ns.Get(ctx, CollectionEmails, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreMergeIsFieldScoped(t *testing.T) {
	ctx := context.Background()
	ns := NewMemoryStore().Namespace("t1")

	_, err := ns.Merge(ctx, CollectionEmails, "m1", Fields{
		"subject": "Hello",
		"read":    false,
	})
	require.NoError(t, err)

	doc, err := ns.Merge(ctx, CollectionEmails, "m1", Fields{
		"classification": "newsletter",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello", doc.String("subject"))
	assert.Equal(t, "newsletter", doc.String("classification"))
	assert.False(t, doc.Bool("read"))
	assert.False(t, doc.UpdatedAt.IsZero())
}

func TestMemoryStoreNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Namespace("t1").Merge(ctx, CollectionEmails, "m1", Fields{"subject": "a"})
	require.NoError(t, err)

	_, err = st.Namespace("t2").Get(ctx, CollectionEmails, "m1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreQueryOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	ns := NewMemoryStore().Namespace("t1")

	for _, m := range []struct{ id, receivedAt string }{
		{"m1", "2025-01-01T10:00:00Z"},
		{"m2", "2025-01-03T10:00:00Z"},
		{"m3", "2025-01-02T10:00:00Z"},
	} {
		_, err := ns.Merge(ctx, CollectionEmails, m.id, Fields{"receivedAt": m.receivedAt})
		require.NoError(t, err)
	}

	docs, err := ns.Query(ctx, Query{
		Collection: CollectionEmails,
		OrderBy:    "receivedAt",
		Descending: true,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "m2", docs[0].ID)
	assert.Equal(t, "m3", docs[1].ID)
}

func TestMemoryStoreQueryDescendingWithEqualKeys(t *testing.T) {
	ctx := context.Background()
	ns := NewMemoryStore().Namespace("t1")

	// sort.Slice requires a strict less function; equal order keys must
	// compare as not-less in both directions.
	for i := 0; i < 20; i++ {
		_, err := ns.Merge(ctx, CollectionEmails, fmt.Sprintf("m%02d", i), Fields{"receivedAt": "2025-01-01T10:00:00Z"})
		require.NoError(t, err)
	}
	_, err := ns.Merge(ctx, CollectionEmails, "newest", Fields{"receivedAt": "2025-01-02T10:00:00Z"})
	require.NoError(t, err)

	docs, err := ns.Query(ctx, Query{
		Collection: CollectionEmails,
		OrderBy:    "receivedAt",
		Descending: true,
	})
	require.NoError(t, err)
	require.Len(t, docs, 21)
	assert.Equal(t, "newest", docs[0].ID)
	for _, doc := range docs[1:] {
		assert.Equal(t, "2025-01-01T10:00:00Z", doc.String("receivedAt"))
	}
}

func TestMemoryStoreConcurrentMergesOnDisjointFields(t *testing.T) {
	ctx := context.Background()
	ns := NewMemoryStore().Namespace("t1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = ns.Merge(ctx, CollectionEmails, "m1", Fields{"classification": "sponsorship"})
	}()
	go func() {
		defer wg.Done()
		_, _ = ns.Merge(ctx, CollectionEmails, "m1", Fields{"sponsorship": map[string]any{"amount": float64(500)}})
	}()
	wg.Wait()

	doc, err := ns.Get(ctx, CollectionEmails, "m1")
	require.NoError(t, err)
	assert.Equal(t, "sponsorship", doc.String("classification"))
	assert.True(t, doc.Has("sponsorship"))
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ns := NewMemoryStore().Namespace("t1")

	_, err := ns.Merge(ctx, CollectionAccounts, "a1", Fields{"provider": "google"})
	require.NoError(t, err)

	require.NoError(t, ns.Delete(ctx, CollectionAccounts, "a1"))
	require.NoError(t, ns.Delete(ctx, CollectionAccounts, "a1"))

	_, err = ns.Get(ctx, CollectionAccounts, "a1")
	assert.ErrorIs(t, err, ErrNotFound)
}
