package cachekv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskBackend_BasicOperations(t *testing.T) {
	b, err := NewDiskBackend(DiskConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k1", []byte("v1"), 0))
	val, ok, err := b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), val)

	require.NoError(t, b.Delete(ctx, "k1"))
	_, ok, err = b.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskBackend_SetWithTTL(t *testing.T) {
	b, err := NewDiskBackend(DiskConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k1", []byte("v1"), time.Second))
	has, err := b.Has(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDiskBackend_RejectsEmptyDir(t *testing.T) {
	_, err := NewDiskBackend(DiskConfig{Dir: ""})
	assert.Error(t, err)
}
