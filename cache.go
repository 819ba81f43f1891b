package quarry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/quarry/dialect/sql"
)

// keyPrefix namespaces every cache key written by the engine.
const keyPrefix = "quarry"

// Cache is the interface for caching query results. Implementations
// are provided by cache/memcache and cache/rediscache; users may plug
// in their own.
type Cache interface {
	// Has reports whether the key exists.
	Has(ctx context.Context, key string) (bool, error)
	// Get retrieves a value. Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores a value with the given TTL. A zero TTL stores without
	// expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key.
	Delete(ctx context.Context, key string) error
	// DeletePattern removes all keys matching a `prefix*` pattern and
	// reports whether any were removed.
	DeletePattern(ctx context.Context, pattern string) (bool, error)
	// Clear removes all keys and reports whether the store was flushed.
	Clear(ctx context.Context) (bool, error)
	// GetMultiple retrieves the given keys; missing keys are absent
	// from the returned map.
	GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error)
}

// CachePayload is the persisted form of an executed query result. It
// always holds materialized rows; a single-pass cursor cannot be
// cached. Payloads read back from the cache are untrusted and must pass
// Validate before use.
type CachePayload struct {
	Rows       []map[string]any `msgpack:"rows"`
	RowCount   int              `msgpack:"count"`
	Pagination *PageInfo        `msgpack:"pagination,omitempty"`
	CachedAt   time.Time        `msgpack:"cached_at"`
	TTL        int64            `msgpack:"ttl"`
}

// Validate shape-checks a decoded payload.
func (p *CachePayload) Validate() error {
	if p.Rows == nil {
		return fmt.Errorf("quarry: cache payload has no rows field")
	}
	if p.RowCount < 0 || p.RowCount != len(p.Rows) {
		return fmt.Errorf("quarry: cache payload count %d does not match %d rows", p.RowCount, len(p.Rows))
	}
	if p.Pagination != nil {
		pg := p.Pagination
		if pg.CurrentPage < 0 || pg.PerPage < 0 || pg.TotalPages < 0 || pg.TotalItems < 0 {
			return fmt.Errorf("quarry: cache payload has negative pagination fields")
		}
	}
	return nil
}

// encodePayload serializes a payload with msgpack.
func encodePayload(p *CachePayload) ([]byte, error) {
	buf, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("quarry: encode cache payload: %w", err)
	}
	return buf, nil
}

// decodePayload deserializes and shape-validates a payload.
func decodePayload(buf []byte) (*CachePayload, error) {
	var p CachePayload
	if err := msgpack.Unmarshal(buf, &p); err != nil {
		return nil, fmt.Errorf("quarry: decode cache payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// CacheKey derives a deterministic cache key from the dialect, the
// rendered SQL text and the parameter set. Two builders producing
// identical SQL and parameters always produce the same key, and
// structurally different parameter sets never share one: every name and
// value is hashed as its own NUL-terminated segment, so delimiter
// characters inside values cannot fake a different set's encoding.
// The table segment keys pattern-based invalidation.
func CacheKey(dialectName, table, query string, params map[string]sql.Value) string {
	h := sha256.New()
	h.Write([]byte(dialectName))
	h.Write([]byte{0})
	h.Write([]byte(query))
	h.Write([]byte{0})
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(params[name].Key()))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s:%s:%s", keyPrefix, table, hex.EncodeToString(h.Sum(nil)))
}

// TablePattern returns the DeletePattern argument matching every cached
// result for the given table.
func TablePattern(table string) string {
	return fmt.Sprintf("%s:%s:*", keyPrefix, table)
}
