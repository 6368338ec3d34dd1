// Package cachekv provides the uniform key/value backend abstraction that
// internal/cachefacade builds on. The disk and remote backends store raw
// bytes (already encoded by an internal/serializer.Serializer); the
// in-process LRU backend holds values as given. Each backend reports a
// small set of capability flags the facade uses to decide whether it must
// encode values itself before calling Set.
package cachekv

import (
	"context"
	"time"
)

// Backend is the minimal interface a cache storage engine must satisfy.
// Implementations need not be safe for use before Init returns.
type Backend interface {
	// BackendID returns a stable identifier for logging and the describe
	// endpoint, e.g. "lru:a1b2c3" or "remote:redis-0".
	BackendID() string

	// RequiresEncoding reports whether values must be pre-encoded to bytes
	// before Set (true for disk/remote backends; false for in-process
	// backends that can hold arbitrary Go values directly).
	RequiresEncoding() bool

	// RequiresAsyncInit reports whether Init must be called (and awaited)
	// before the backend is usable, e.g. a remote backend's connection
	// handshake.
	RequiresAsyncInit() bool

	// Init performs any setup that requires I/O or blocking work. Backends
	// that don't need it return nil immediately.
	Init(ctx context.Context) error

	// Get and Set carry []byte for backends that RequiresEncoding, or an
	// arbitrary Go value for backends that don't; internal/cachefacade
	// decides which shape to pass based on RequiresEncoding.
	Get(ctx context.Context, key string) (any, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)

	// Keys enumerates keys matching a glob-style pattern ("*" for all).
	// Used by the cache-clear management endpoints.
	Keys(ctx context.Context, pattern string) ([]string, error)

	Clear(ctx context.Context) error
	Close() error
}

// Kind names a concrete backend variant, used by Config and the factory.
type Kind string

const (
	KindLRU    Kind = "lru"
	KindDisk   Kind = "disk"
	KindRemote Kind = "remote"
)
