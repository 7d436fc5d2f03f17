// Package tenant resolves authenticated external identities to their
// canonical per-tenant document namespaces.
//
// Every data operation in the assistant core goes through this mapping
// before touching per-tenant collections. Historical identity migrations
// are modeled as a one-hop redirect table, keeping resolution O(1) and
// cycle-free. Resolution never provisions namespaces; a missing mapping
// is an UnresolvedTenantError.
package tenant
