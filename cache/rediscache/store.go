// Package rediscache provides a quarry.Cache backed by Redis, for
// sharing cached query results across processes.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/syssam/quarry"
)

// scanBatch bounds the SCAN page size used by DeletePattern.
const scanBatch = 256

// Store is a Redis-backed cache store.
type Store struct {
	client redis.UniversalClient
}

// New wraps an existing Redis client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Has reports whether the key exists.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get retrieves a value. Returns nil, nil on a miss.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	buf, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Set stores a value. A zero ttl stores without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// DeletePattern removes all keys matching a glob pattern via SCAN.
func (s *Store) DeletePattern(ctx context.Context, pattern string) (bool, error) {
	var (
		cursor  uint64
		removed bool
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return removed, err
			}
			removed = true
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// Clear flushes the current database.
func (s *Store) Clear(ctx context.Context) (bool, error) {
	if err := s.client.FlushDB(ctx).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// GetMultiple retrieves the given keys with a single MGET; missing
// keys are absent from the result.
func (s *Store) GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			out[keys[i]] = []byte(str)
		}
	}
	return out, nil
}

var _ quarry.Cache = (*Store)(nil)
