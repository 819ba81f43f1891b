package memcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	ok, err := s.Has(ctx, "quarry:users:a")
	require.NoError(t, err)
	assert.False(t, ok)

	buf, err := s.Get(ctx, "quarry:users:a")
	require.NoError(t, err)
	assert.Nil(t, buf)

	require.NoError(t, s.Set(ctx, "quarry:users:a", []byte("v1"), 0))
	ok, err = s.Has(ctx, "quarry:users:a")
	require.NoError(t, err)
	assert.True(t, ok)

	buf, err = s.Get(ctx, "quarry:users:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), buf)

	require.NoError(t, s.Delete(ctx, "quarry:users:a"))
	buf, err = s.Get(ctx, "quarry:users:a")
	require.NoError(t, err)
	assert.Nil(t, buf)
}

func TestStoreExpiry(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	buf, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, buf)
}

func TestStoreDeletePattern(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "quarry:users:a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "quarry:users:b", []byte("2"), 0))
	require.NoError(t, s.Set(ctx, "quarry:orders:c", []byte("3"), 0))

	removed, err := s.DeletePattern(ctx, "quarry:users:*")
	require.NoError(t, err)
	assert.True(t, removed)

	buf, err := s.Get(ctx, "quarry:users:a")
	require.NoError(t, err)
	assert.Nil(t, buf)
	buf, err = s.Get(ctx, "quarry:orders:c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), buf)

	removed, err = s.DeletePattern(ctx, "quarry:users:*")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStoreGetMultiple(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	got, err := s.GetMultiple(ctx, []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []byte("1"), got["a"])
	assert.Equal(t, []byte("2"), got["b"])
	assert.NotContains(t, got, "missing")
}

func TestStoreClear(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	ok, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	has, err := s.Has(ctx, "a")
	require.NoError(t, err)
	assert.False(t, has)
}
