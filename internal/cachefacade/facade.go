// Package cachefacade sits between the executor/origin fetcher and
// internal/cachekv. It owns the encode/decode boundary, the validator
// "sidecar" key convention, and hit/miss bookkeeping, and it absorbs every
// backend failure so a flaky cache degrades to a cache miss instead of
// failing the request.
package cachefacade

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/KathyBarabash/asg-runtime/internal/cachekv"
	"github.com/KathyBarabash/asg-runtime/internal/serializer"
)

// headersSuffix marks the sidecar key that stores cache validators
// alongside a data key. "K" holds the body, "K::headers" the validators.
const headersSuffix = "::headers"

func headersKey(dataKey string) string {
	return dataKey + headersSuffix
}

// Validators carries the cache-revalidation headers for one origin
// response (ETag / Last-Modified).
type Validators struct {
	ETag         string `json:"etag,omitempty" msgpack:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty" msgpack:"last_modified,omitempty"`
}

// Stats is a point-in-time snapshot of this facade's hit/miss counters.
type Stats struct {
	Hits    int64
	Misses  int64
	SetOps  int64
	DelOps  int64
	Errors  int64
}

// Facade is the single cache entry point used by both the response cache
// and the origin cache; nothing outside this package talks to
// internal/cachekv directly.
type Facade struct {
	backend    cachekv.Backend
	serializer serializer.Serializer
	logger     *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	dels   atomic.Int64
	errs   atomic.Int64
}

// New builds a facade over backend, encoding through ser only when the
// backend reports RequiresEncoding. It fails at construction time when
// backend requires pre-encoded bytes but ser cannot produce them (e.g.
// identity paired with a disk or remote backend): left unchecked, every
// Set would fail at runtime instead, degrading the tier to a permanent
// cache miss no-op.
func New(backend cachekv.Backend, ser serializer.Serializer, logger *slog.Logger) (*Facade, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if backend.RequiresEncoding() && !ser.EncodesToBytes() {
		return nil, fmt.Errorf("cachefacade: backend %q requires encoding but serializer %q cannot encode to bytes",
			backend.BackendID(), ser.Name())
	}
	return &Facade{backend: backend, serializer: ser, logger: logger}, nil
}

// Init performs backend setup (e.g. a remote connection handshake) when
// the backend requires it.
func (f *Facade) Init(ctx context.Context) error {
	if !f.backend.RequiresAsyncInit() {
		return nil
	}
	return f.backend.Init(ctx)
}

// toStored converts a decoded value into whatever shape the backend
// expects to receive on Set: pre-encoded bytes when RequiresEncoding,
// otherwise the value itself, stored verbatim.
func (f *Facade) toStored(value any) (any, error) {
	if !f.backend.RequiresEncoding() {
		return value, nil
	}
	return f.serializer.Encode(value)
}

// fromStored converts whatever the backend returned from Get back into a
// decoded value.
func (f *Facade) fromStored(stored any) (any, error) {
	if !f.backend.RequiresEncoding() {
		return stored, nil
	}
	raw, ok := stored.([]byte)
	if !ok {
		return nil, fmt.Errorf("cachefacade: expected []byte from backend, got %T", stored)
	}
	return f.serializer.Decode(raw)
}

// GetData returns the cached value for key, or nil with ok=false on a
// miss. Backend failures are logged and treated as a miss: a broken cache
// must never fail a request that would otherwise have hit the origin.
func (f *Facade) GetData(ctx context.Context, key string) (any, bool) {
	raw, found, err := f.backend.Get(ctx, key)
	if err != nil {
		f.errs.Add(1)
		f.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	if !found {
		f.misses.Add(1)
		return nil, false
	}
	value, err := f.fromStored(raw)
	if err != nil {
		f.errs.Add(1)
		f.logger.Warn("cache decode failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	f.hits.Add(1)
	return value, true
}

// GetDataWithValidators returns the cached value and its sidecar
// validators, if any. An orphaned sidecar (validators present with no
// data) is discarded with a warning rather than surfaced as an error:
// this is treated as a benign race between body and sidecar writes,
// never as corruption. Data with no validators is returned as a hit with
// nil validators.
func (f *Facade) GetDataWithValidators(ctx context.Context, key string) (any, *Validators, bool) {
	value, ok := f.GetData(ctx, key)
	validators := f.getValidators(ctx, key)
	if !ok && validators != nil {
		f.logger.Warn("orphaned cache validators with no data, discarding", "key", key)
		return nil, nil, false
	}
	if ok && validators == nil {
		return value, nil, true
	}
	return value, validators, ok
}

func (f *Facade) getValidators(ctx context.Context, key string) *Validators {
	raw, found, err := f.backend.Get(ctx, headersKey(key))
	if err != nil {
		f.logger.Warn("cache validators get failed, ignoring", "key", key, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	decoded, err := f.fromStored(raw)
	if err != nil {
		f.logger.Warn("cache validators decode failed, ignoring", "key", key, "error", err)
		return nil
	}
	v, ok := decoded.(*Validators)
	if !ok {
		return decodeValidators(decoded)
	}
	return v
}

// decodeValidators recovers a *Validators from the generic map shape a
// msgpack/json round-trip produces, since the backend never knows the
// concrete type it stored.
func decodeValidators(decoded any) *Validators {
	m, ok := decoded.(map[string]any)
	if !ok {
		return nil
	}
	v := &Validators{}
	if s, ok := m["etag"].(string); ok {
		v.ETag = s
	}
	if s, ok := m["last_modified"].(string); ok {
		v.LastModified = s
	}
	if v.ETag == "" && v.LastModified == "" {
		return nil
	}
	return v
}

// Set stores value under key with ttl. A nil value is never cached (the
// "data is null, won't cache" rule) and this is not an error.
func (f *Facade) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if value == nil {
		f.logger.Debug("refusing to cache nil value", "key", key)
		return nil
	}
	encoded, err := f.toStored(value)
	if err != nil {
		f.errs.Add(1)
		return err
	}
	if encoded == nil {
		f.logger.Debug("encoded value is empty, won't cache", "key", key)
		return nil
	}
	if err := f.backend.Set(ctx, key, encoded, ttl); err != nil {
		f.errs.Add(1)
		f.logger.Warn("cache set failed", "key", key, "error", err)
		return err
	}
	f.sets.Add(1)
	return nil
}

// SetValidators stores the sidecar validators for key. It is always
// called after the body Set so an orphaned sidecar (without a body) can
// never outlive a crash between the two writes for longer than it takes
// GetDataWithValidators to notice and discard it.
func (f *Facade) SetValidators(ctx context.Context, key string, v Validators) error {
	encoded, err := f.toStored(map[string]any{"etag": v.ETag, "last_modified": v.LastModified})
	if err != nil {
		f.errs.Add(1)
		return err
	}
	if err := f.backend.Set(ctx, headersKey(key), encoded, 0); err != nil {
		f.errs.Add(1)
		f.logger.Warn("cache set validators failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Delete removes key and, if withValidators, its sidecar too.
func (f *Facade) Delete(ctx context.Context, key string, withValidators bool) error {
	if err := f.backend.Delete(ctx, key); err != nil {
		f.errs.Add(1)
		f.logger.Warn("cache delete failed", "key", key, "error", err)
		return err
	}
	f.dels.Add(1)
	if withValidators {
		if err := f.backend.Delete(ctx, headersKey(key)); err != nil {
			f.logger.Warn("cache delete validators failed", "key", key, "error", err)
		}
	}
	return nil
}

// Has reports whether key is present, absorbing backend errors as false.
func (f *Facade) Has(ctx context.Context, key string) bool {
	ok, err := f.backend.Has(ctx, key)
	if err != nil {
		f.logger.Warn("cache has failed, treating as absent", "key", key, "error", err)
		return false
	}
	return ok
}

// Clear empties the backend and resets this facade's counters.
func (f *Facade) Clear(ctx context.Context) error {
	if err := f.backend.Clear(ctx); err != nil {
		f.errs.Add(1)
		return err
	}
	f.hits.Store(0)
	f.misses.Store(0)
	f.sets.Store(0)
	f.dels.Store(0)
	f.errs.Store(0)
	return nil
}

// Stats returns a snapshot of hit/miss/set/delete/error counters.
func (f *Facade) Stats() Stats {
	return Stats{
		Hits:   f.hits.Load(),
		Misses: f.misses.Load(),
		SetOps: f.sets.Load(),
		DelOps: f.dels.Load(),
		Errors: f.errs.Load(),
	}
}

// BackendID exposes the underlying backend's identifier for the
// describe/stats management surface.
func (f *Facade) BackendID() string { return f.backend.BackendID() }

// Close releases the backend's resources.
func (f *Facade) Close() error { return f.backend.Close() }
