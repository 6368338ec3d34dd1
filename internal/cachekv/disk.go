package cachekv

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// DiskBackend is a directory-scoped persistent backend with native
// per-key TTL, backed by badger. It always requires pre-encoded bytes:
// badger stores opaque []byte values only.
type DiskBackend struct {
	db  *badger.DB
	dir string
}

// DiskConfig configures a persistent on-disk backend.
type DiskConfig struct {
	Dir string `yaml:"dir"` // required, directory is created if absent
}

// NewDiskBackend opens (creating if necessary) a badger store rooted at
// cfg.Dir. Init is a no-op; the store is ready as soon as this returns,
// matching badger's synchronous Open.
func NewDiskBackend(cfg DiskConfig) (*DiskBackend, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cachekv: disk dir must not be empty")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("cachekv: resolve disk dir: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cachekv: open badger at %s: %w", dir, err)
	}
	return &DiskBackend{db: db, dir: dir}, nil
}

func (b *DiskBackend) BackendID() string         { return "disk:" + b.dir }
func (b *DiskBackend) RequiresEncoding() bool     { return true }
func (b *DiskBackend) RequiresAsyncInit() bool    { return false }
func (b *DiskBackend) Init(ctx context.Context) error { return nil }

func (b *DiskBackend) Get(ctx context.Context, key string) (any, bool, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("cachekv: disk get %q: %w", key, err)
	}
	return out, out != nil, nil
}

func (b *DiskBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cachekv: disk backend requires []byte, got %T", value)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cachekv: disk set %q: %w", key, err)
	}
	return nil
}

func (b *DiskBackend) Delete(ctx context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("cachekv: disk delete %q: %w", key, err)
	}
	return nil
}

func (b *DiskBackend) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *DiskBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			matched, err := filepath.Match(pattern, key)
			if err != nil {
				return err
			}
			if matched {
				out = append(out, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cachekv: disk keys: %w", err)
	}
	return out, nil
}

func (b *DiskBackend) Clear(ctx context.Context) error {
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("cachekv: disk clear: %w", err)
	}
	return nil
}

func (b *DiskBackend) Close() error {
	return b.db.Close()
}
