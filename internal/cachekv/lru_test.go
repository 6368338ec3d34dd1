package cachekv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUBackend_BasicOperations(t *testing.T) {
	b, err := NewLRUBackend(LRUConfig{MaxEntries: 10})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "k1", []byte("v1"), 0))
		val, ok, err := b.Get(ctx, "k1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("v1"), val)
	})

	t.Run("miss", func(t *testing.T) {
		_, ok, err := b.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "k2", []byte("v2"), 0))
		require.NoError(t, b.Delete(ctx, "k2"))
		_, ok, err := b.Get(ctx, "k2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, b.Set(ctx, "k3", []byte("v3"), time.Millisecond))
		time.Sleep(5 * time.Millisecond)
		_, ok, err := b.Get(ctx, "k3")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestLRUBackend_StrictEviction(t *testing.T) {
	b, err := NewLRUBackend(LRUConfig{MaxEntries: 2})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, b.Set(ctx, "c", []byte("3"), 0))

	keys, err := b.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	_, ok, err := b.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "oldest entry should have been evicted")
}

func TestLRUBackend_Clear(t *testing.T) {
	b, err := NewLRUBackend(LRUConfig{MaxEntries: 10})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, b.Clear(ctx))

	keys, err := b.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestNewLRUBackend_RejectsZeroSize(t *testing.T) {
	_, err := NewLRUBackend(LRUConfig{MaxEntries: 0})
	assert.Error(t, err)
}
