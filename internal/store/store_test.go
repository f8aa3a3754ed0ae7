package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/julianshen/repolens/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := NewStore(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStoreInMemory(t *testing.T) {
	s, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NotNil(t, s)

	err = s.Close()
	assert.NoError(t, err)
}

func TestSetAndGetItem(t *testing.T) {
	s := newMemStore(t)

	_, ok, err := s.GetItem("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetItem("k", "v1"))
	v, ok, err := s.GetItem("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", v)

	// Replace existing value.
	require.NoError(t, s.SetItem("k", "v2"))
	v, _, err = s.GetItem("k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
}

func TestRemoveItem(t *testing.T) {
	s := newMemStore(t)
	require.NoError(t, s.SetItem("k", "v"))
	require.NoError(t, s.RemoveItem("k"))
	require.NoError(t, s.RemoveItem("never-existed"))

	_, ok, err := s.GetItem("k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeysAndClear(t *testing.T) {
	s := newMemStore(t)
	require.NoError(t, s.SetItem("app:b", "1"))
	require.NoError(t, s.SetItem("app:a", "1"))
	require.NoError(t, s.SetItem("other:c", "1"))
	require.NoError(t, s.SetItem("ap", "1"))

	keys, err := s.Keys("app:")
	require.NoError(t, err)
	assert.Equal(t, []string{"app:a", "app:b"}, keys)

	n, err := s.Clear("app:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err = s.Keys("")
	require.NoError(t, err)
	assert.Equal(t, []string{"ap", "other:c"}, keys)
}

func TestMaxItemsQuota(t *testing.T) {
	s := newMemStore(t, WithMaxItems(2))
	require.NoError(t, s.SetItem("a", "1"))
	require.NoError(t, s.SetItem("b", "1"))

	err := s.SetItem("c", "1")
	assert.ErrorIs(t, err, cache.ErrQuotaExceeded)

	// Overwriting an existing key does not grow the table.
	assert.NoError(t, s.SetItem("a", "2"))
}

func TestStoreBacksCache(t *testing.T) {
	s := newMemStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := cache.New(s, cache.WithClock(func() time.Time { return now }))

	key := cache.GenerateKey("octo/repo", "diagram", "diagram")
	cache.Set(c, key, "graph TB\n  a[A]")

	got, ok := cache.Get[string](c, key)
	require.True(t, ok)
	assert.Equal(t, "graph TB\n  a[A]", got)

	now = now.Add(25 * time.Hour)
	_, ok = cache.Get[string](c, key)
	assert.False(t, ok)

	_, found, err := s.GetItem(key)
	require.NoError(t, err)
	assert.False(t, found, "expired entry removed from sqlite")
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetItem("k", "v"))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.GetItem("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
