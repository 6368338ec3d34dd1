package cachekv

import "fmt"

// Config selects and configures one backend variant. Only the section
// matching Kind is consulted.
type Config struct {
	Kind   Kind         `yaml:"kind"`
	LRU    LRUConfig    `yaml:"lru"`
	Disk   DiskConfig   `yaml:"disk"`
	Remote RemoteConfig `yaml:"remote"`
}

// DefaultConfig returns a small bounded in-memory backend, suitable for
// development and tests.
func DefaultConfig() Config {
	return Config{
		Kind: KindLRU,
		LRU:  LRUConfig{MaxEntries: 10_000},
	}
}

// New constructs the backend named by cfg.Kind. Callers must call Init
// before first use when RequiresAsyncInit reports true.
func New(cfg Config) (Backend, error) {
	switch cfg.Kind {
	case KindLRU, "":
		return NewLRUBackend(cfg.LRU)
	case KindDisk:
		return NewDiskBackend(cfg.Disk)
	case KindRemote:
		return NewRemoteBackend(cfg.Remote), nil
	default:
		return nil, fmt.Errorf("cachekv: unsupported backend kind %q", cfg.Kind)
	}
}
