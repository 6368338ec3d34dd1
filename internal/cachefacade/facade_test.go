package cachefacade

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/KathyBarabash/asg-runtime/internal/cachekv"
	"github.com/KathyBarabash/asg-runtime/internal/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	backend, err := cachekv.NewLRUBackend(cachekv.LRUConfig{MaxEntries: 100})
	require.NoError(t, err)
	f, err := New(backend, serializer.NewJSONBinary(), testLogger())
	require.NoError(t, err)
	return f
}

func TestNew_RejectsEncodingIncapableSerializerOnEncodingBackend(t *testing.T) {
	backend, err := cachekv.NewDiskBackend(cachekv.DiskConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	defer backend.Close()

	_, err = New(backend, serializer.NewIdentity(), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot encode to bytes")
}

func TestFacade_SetAndGet(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	require.NoError(t, f.Set(ctx, "k1", map[string]any{"a": float64(1)}, time.Minute))

	val, ok := f.GetData(ctx, "k1")
	assert.True(t, ok)
	assert.Equal(t, map[string]any{"a": float64(1)}, val)

	stats := f.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.SetOps)
}

func TestFacade_Miss(t *testing.T) {
	f := newTestFacade(t)
	_, ok := f.GetData(context.Background(), "missing")
	assert.False(t, ok)
	assert.Equal(t, int64(1), f.Stats().Misses)
}

func TestFacade_NilValueNotCached(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	require.NoError(t, f.Set(ctx, "k1", nil, time.Minute))
	_, ok := f.GetData(ctx, "k1")
	assert.False(t, ok)
	assert.Equal(t, int64(0), f.Stats().SetOps)
}

func TestFacade_ValidatorsSidecar(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	require.NoError(t, f.Set(ctx, "k1", map[string]any{"x": float64(1)}, time.Minute))
	require.NoError(t, f.SetValidators(ctx, "k1", Validators{ETag: `"abc"`}))

	_, validators, ok := f.GetDataWithValidators(ctx, "k1")
	require.True(t, ok)
	require.NotNil(t, validators)
	assert.Equal(t, `"abc"`, validators.ETag)
}

func TestFacade_OrphanedValidatorsDiscarded(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	// Sidecar written without a body: simulates a crash between the two
	// writes.
	require.NoError(t, f.SetValidators(ctx, "k1", Validators{ETag: `"orphan"`}))

	_, validators, ok := f.GetDataWithValidators(ctx, "k1")
	assert.False(t, ok)
	assert.Nil(t, validators)
}

func TestFacade_DeleteWithValidators(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	require.NoError(t, f.Set(ctx, "k1", "v", time.Minute))
	require.NoError(t, f.SetValidators(ctx, "k1", Validators{ETag: `"a"`}))

	require.NoError(t, f.Delete(ctx, "k1", true))

	assert.False(t, f.Has(ctx, "k1"))
	_, ok := f.GetData(ctx, headersKey("k1"))
	assert.False(t, ok)
}

func TestFacade_Clear(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	require.NoError(t, f.Set(ctx, "k1", "v", time.Minute))
	f.GetData(ctx, "k1")

	require.NoError(t, f.Clear(ctx))
	assert.Equal(t, Stats{}, f.Stats())
	assert.False(t, f.Has(ctx, "k1"))
}
