package cachekv

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// lruEntry pairs a stored value with its absolute expiration, so the
// bounded LRU can still honor a per-set TTL on top of hashicorp/golang-lru's
// strict size-based eviction.
type lruEntry struct {
	value   any
	expires time.Time // zero means no expiration
}

// LRUBackend is a bounded in-process backend with strict LRU eviction on
// size, layered with an optional TTL per entry. It never requires
// encoding: it stores whatever value the facade hands it directly, with
// no serializer round-trip.
type LRUBackend struct {
	mu    sync.Mutex
	cache *lru.Cache[string, lruEntry]
	id    string
}

// LRUConfig configures a bounded in-memory backend.
type LRUConfig struct {
	MaxEntries int `yaml:"max_entries"` // required, > 0
}

// NewLRUBackend constructs a strict-eviction bounded cache.
func NewLRUBackend(cfg LRUConfig) (*LRUBackend, error) {
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("cachekv: lru max_entries must be > 0")
	}
	c, err := lru.New[string, lruEntry](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("cachekv: new lru: %w", err)
	}
	return &LRUBackend{cache: c, id: fmt.Sprintf("lru:%p", c)}, nil
}

func (b *LRUBackend) BackendID() string         { return b.id }
func (b *LRUBackend) RequiresEncoding() bool     { return false }
func (b *LRUBackend) RequiresAsyncInit() bool    { return false }
func (b *LRUBackend) Init(ctx context.Context) error { return nil }

func (b *LRUBackend) Get(ctx context.Context, key string) (any, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		b.cache.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (b *LRUBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Add(key, lruEntry{value: value, expires: expires})
	return nil
}

func (b *LRUBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Remove(key)
	return nil
}

func (b *LRUBackend) Has(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.cache.Peek(key)
	return ok, nil
}

func (b *LRUBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, k := range b.cache.Keys() {
		matched, err := path.Match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("cachekv: invalid pattern %q: %w", pattern, err)
		}
		if matched {
			out = append(out, k)
		}
	}
	return out, nil
}

func (b *LRUBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Purge()
	return nil
}

func (b *LRUBackend) Close() error { return nil }
