// Package memcache provides an in-process quarry.Cache backed by
// patrickmn/go-cache. It suits single-process deployments and tests.
package memcache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/syssam/quarry"
)

// defaultCleanup is the interval at which expired entries are purged.
const defaultCleanup = time.Minute

// Store is an in-memory cache store.
type Store struct {
	c *gocache.Cache
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{c: gocache.New(gocache.NoExpiration, defaultCleanup)}
}

// Has reports whether the key exists and has not expired.
func (s *Store) Has(_ context.Context, key string) (bool, error) {
	_, ok := s.c.Get(key)
	return ok, nil
}

// Get retrieves a value. Returns nil, nil on a miss.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, nil
	}
	buf, ok := v.([]byte)
	if !ok {
		return nil, nil
	}
	return buf, nil
}

// Set stores a value. A zero ttl stores without expiry.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.c.Set(key, value, ttl)
	return nil
}

// Delete removes a key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

// DeletePattern removes all keys matching a `prefix*` pattern.
func (s *Store) DeletePattern(_ context.Context, pattern string) (bool, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	removed := false
	for key := range s.c.Items() {
		if strings.HasPrefix(key, prefix) {
			s.c.Delete(key)
			removed = true
		}
	}
	return removed, nil
}

// Clear removes all keys.
func (s *Store) Clear(_ context.Context) (bool, error) {
	s.c.Flush()
	return true, nil
}

// GetMultiple retrieves the given keys; missing keys are absent from
// the result.
func (s *Store) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		buf, err := s.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if buf != nil {
			out[key] = buf
		}
	}
	return out, nil
}

var _ quarry.Cache = (*Store)(nil)
