package store

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
)

// DefaultKeyPrefix is the prefix for all Valkey keys written by this store.
const DefaultKeyPrefix = "ip:"

// ValkeyConfig holds connection settings for the Valkey document store.
type ValkeyConfig struct {
	// URL is the Valkey server address (e.g., "valkey.namespace.svc:6379").
	URL string

	// Password is the optional password for Valkey authentication.
	Password string

	// TLSEnabled enables TLS for Valkey connections.
	TLSEnabled bool

	// KeyPrefix is the prefix for all Valkey keys (default: "ip:").
	KeyPrefix string

	// DB is the Valkey database number (default: 0).
	DB int
}

// ValkeyStore is a Valkey-backed document store. Documents are hashes
// with JSON-encoded field values, so HSET gives the field-merge update
// semantics the engines rely on. Emails additionally maintain a sorted
// set keyed by receipt time to serve recency-ordered queries.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore connects to Valkey and returns a store handle.
func NewValkeyStore(config ValkeyConfig) (*ValkeyStore, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("valkey URL is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}

	option := valkey.ClientOption{
		InitAddress: []string{config.URL},
		Password:    config.Password,
		SelectDB:    config.DB,
	}
	if config.TLSEnabled {
		option.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	return &ValkeyStore{client: client, prefix: config.KeyPrefix}, nil
}

// Namespace returns the tenant-scoped handle. All keys for the tenant
// share a common prefix; there is no cross-tenant key shape.
func (s *ValkeyStore) Namespace(tenant string) Namespace {
	return &valkeyNamespace{store: s, tenant: tenant}
}

// Close releases the underlying client connections.
func (s *ValkeyStore) Close() {
	s.client.Close()
}

type valkeyNamespace struct {
	store  *ValkeyStore
	tenant string
}

func (n *valkeyNamespace) Tenant() string {
	return n.tenant
}

func (n *valkeyNamespace) docKey(collection, id string) string {
	return n.store.prefix + n.tenant + ":" + collection + ":" + id
}

func (n *valkeyNamespace) indexKey(collection string) string {
	return n.store.prefix + n.tenant + ":" + collection + ":byReceivedAt"
}

func (n *valkeyNamespace) membersKey(collection string) string {
	return n.store.prefix + n.tenant + ":" + collection + ":ids"
}

func (n *valkeyNamespace) Get(ctx context.Context, collection, id string) (*Document, error) {
	client := n.store.client
	raw, err := client.Do(ctx, client.B().Hgetall().Key(n.docKey(collection, id)).Build()).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	return decodeDocument(id, raw)
}

func (n *valkeyNamespace) Merge(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	client := n.store.client
	now := time.Now().UTC()

	cmd := client.B().Hset().Key(n.docKey(collection, id)).FieldValue()
	for k, v := range fields {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
		}
		cmd = cmd.FieldValue(k, string(encoded))
	}
	cmd = cmd.FieldValue(fieldUpdatedAt, strconv.Quote(now.Format(time.RFC3339Nano)))

	if err := client.Do(ctx, cmd.Build()).Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Membership index serves unordered collection scans.
	sadd := client.B().Sadd().Key(n.membersKey(collection)).Member(id).Build()
	if err := client.Do(ctx, sadd).Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Maintain the recency index when the receipt timestamp is written.
	if recv, ok := fields[fieldReceivedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339, recv); err == nil {
			zadd := client.B().Zadd().Key(n.indexKey(collection)).
				ScoreMember().ScoreMember(float64(t.UnixNano()), id).Build()
			if err := client.Do(ctx, zadd).Error(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
		}
	}

	return n.Get(ctx, collection, id)
}

func (n *valkeyNamespace) Delete(ctx context.Context, collection, id string) error {
	client := n.store.client
	if err := client.Do(ctx, client.B().Del().Key(n.docKey(collection, id)).Build()).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := client.Do(ctx, client.B().Zrem().Key(n.indexKey(collection)).Member(id).Build()).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := client.Do(ctx, client.B().Srem().Key(n.membersKey(collection)).Member(id).Build()).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Query supports ordering on receivedAt via the recency index and
// unordered scans via the membership set. Other order fields are not
// needed by the core and are rejected.
func (n *valkeyNamespace) Query(ctx context.Context, q Query) ([]*Document, error) {
	if q.OrderBy != "" && q.OrderBy != fieldReceivedAt {
		return nil, fmt.Errorf("valkey store cannot order by %q", q.OrderBy)
	}

	client := n.store.client

	if q.OrderBy == "" {
		ids, err := client.Do(ctx, client.B().Smembers().Key(n.membersKey(q.Collection)).Build()).AsStrSlice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		sort.Strings(ids)
		if q.Limit > 0 && len(ids) > q.Limit {
			ids = ids[:q.Limit]
		}
		return n.fetchAll(ctx, q.Collection, ids)
	}
	stop := "-1"
	if q.Limit > 0 {
		stop = strconv.Itoa(q.Limit - 1)
	}

	zrange := client.B().Zrange().Key(n.indexKey(q.Collection)).Min("0").Max(stop)
	var cmd valkey.Completed
	if q.Descending {
		cmd = zrange.Rev().Build()
	} else {
		cmd = zrange.Build()
	}

	ids, err := client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n.fetchAll(ctx, q.Collection, ids)
}

func (n *valkeyNamespace) fetchAll(ctx context.Context, collection string, ids []string) ([]*Document, error) {
	docs := make([]*Document, 0, len(ids))
	for _, id := range ids {
		doc, err := n.Get(ctx, collection, id)
		if errors.Is(err, ErrNotFound) {
			continue // index entry for a deleted document
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

const (
	fieldReceivedAt = "receivedAt"
	fieldUpdatedAt  = "updatedAt"
)

func decodeDocument(id string, raw map[string]string) (*Document, error) {
	doc := &Document{ID: id, Fields: make(Fields, len(raw))}
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, fmt.Errorf("corrupt field %s: %w", k, err)
		}
		if k == fieldUpdatedAt {
			if s, ok := decoded.(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					doc.UpdatedAt = t
				}
			}
			continue
		}
		// JSON arrays decode as []any; the engines expect []string for
		// list-valued fields like deliverables.
		if arr, ok := decoded.([]any); ok {
			strs := make([]string, 0, len(arr))
			for _, item := range arr {
				if s, ok := item.(string); ok {
					strs = append(strs, s)
				}
			}
			doc.Fields[k] = strs
			continue
		}
		doc.Fields[k] = decoded
	}
	return doc, nil
}
