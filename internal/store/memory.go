package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory document store with field-merge semantics.
// It backs tests and single-process deployments; production instances
// use the Valkey backend.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]*memoryNamespace
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		namespaces: make(map[string]*memoryNamespace),
	}
}

// Namespace returns the handle for one tenant, creating the empty
// namespace container on first use. Minting a handle never creates
// tenant catalog entries; that is the resolver's concern.
func (s *MemoryStore) Namespace(tenant string) Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[tenant]
	if !ok {
		ns = &memoryNamespace{
			tenant:      tenant,
			collections: make(map[string]map[string]*Document),
		}
		s.namespaces[tenant] = ns
	}
	return ns
}

type memoryNamespace struct {
	tenant      string
	mu          sync.RWMutex
	collections map[string]map[string]*Document
}

func (n *memoryNamespace) Tenant() string {
	return n.tenant
}

func (n *memoryNamespace) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()

	doc, ok := n.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDocument(doc), nil
}

func (n *memoryNamespace) Merge(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	coll, ok := n.collections[collection]
	if !ok {
		coll = make(map[string]*Document)
		n.collections[collection] = coll
	}

	doc, ok := coll[id]
	if !ok {
		doc = &Document{ID: id, Fields: make(Fields)}
		coll[id] = doc
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	doc.UpdatedAt = time.Now().UTC()
	return copyDocument(doc), nil
}

func (n *memoryNamespace) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.collections[collection], id)
	return nil
}

func (n *memoryNamespace) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.mu.RLock()
	docs := make([]*Document, 0, len(n.collections[q.Collection]))
	for _, doc := range n.collections[q.Collection] {
		docs = append(docs, copyDocument(doc))
	}
	n.mu.RUnlock()

	if q.OrderBy == "" {
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	} else {
		sort.Slice(docs, func(i, j int) bool {
			if q.Descending {
				return fieldLess(docs[j], docs[i], q.OrderBy)
			}
			return fieldLess(docs[i], docs[j], q.OrderBy)
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// fieldLess compares a field of two documents. RFC3339 strings compare
// chronologically via their lexical order, so string comparison covers
// both text and timestamp fields.
func fieldLess(a, b *Document, field string) bool {
	return strings.Compare(a.String(field), b.String(field)) < 0
}

func copyDocument(doc *Document) *Document {
	out := &Document{
		ID:        doc.ID,
		Fields:    make(Fields, len(doc.Fields)),
		UpdatedAt: doc.UpdatedAt,
	}
	for k, v := range doc.Fields {
		out.Fields[k] = v
	}
	return out
}
