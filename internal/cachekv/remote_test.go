package cachekv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRemoteBackend(t *testing.T) *RemoteBackend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewRemoteBackendFromClient(client, "asgtest")
}

func TestRemoteBackend_BasicOperations(t *testing.T) {
	b := newTestRemoteBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	require.NoError(t, b.Set(ctx, "k1", []byte("v1"), time.Minute))
	val, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), val)

	has, err := b.Has(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, b.Delete(ctx, "k1"))
	_, ok, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoteBackend_KeysAndClear(t *testing.T) {
	b := newTestRemoteBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Init(ctx))

	require.NoError(t, b.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, b.Set(ctx, "b", []byte("2"), time.Minute))

	keys, err := b.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, b.Clear(ctx))
	keys, err = b.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
