// Package store provides the tenant-scoped document store used by the
// assistant engines.
//
// Documents live in per-tenant namespaces; every operation goes through a
// Namespace handle so cross-tenant access is impossible by construction.
// Updates are field-scoped merges rather than whole-document overwrites,
// which lets independent operations (classification, extraction, read-state
// changes) run concurrently on the same document without losing writes.
//
// Two backends are provided:
//   - MemoryStore: in-memory, for tests and single-process usage
//   - ValkeyStore: Valkey hashes with a sorted-set recency index
//
// Example usage:
//
//	st := store.NewMemoryStore()
//	ns := st.Namespace("tenant-a")
//	doc, err := ns.Merge(ctx, store.CollectionEmails, "m1", store.Fields{
//	    "subject": "Hello",
//	})
package store
