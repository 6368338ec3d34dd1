package cachekv

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RemoteBackend is a connection-based backend over a shared key/value
// store. It supports single-node, cluster and sentinel topologies through
// goredis.UniversalClient, and always requires pre-encoded bytes.
type RemoteBackend struct {
	client    goredis.UniversalClient
	namespace string
	id        string
}

// RemoteConfig configures the remote-KV backend.
type RemoteConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	ClusterAddrs   []string      `yaml:"cluster_addrs"`
	SentinelAddrs  []string      `yaml:"sentinel_addrs"`
	SentinelMaster string        `yaml:"sentinel_master"`
	Namespace      string        `yaml:"namespace"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PoolSize       int           `yaml:"pool_size"`
}

// NewRemoteBackend builds the appropriate goredis client for cfg without
// connecting. Call Init (or rely on RequiresAsyncInit) before first use.
func NewRemoteBackend(cfg RemoteConfig) *RemoteBackend {
	var client goredis.UniversalClient
	switch {
	case len(cfg.ClusterAddrs) > 0:
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
	case len(cfg.SentinelAddrs) > 0:
		client = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.SentinelMaster,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
		})
	default:
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
	}
	return &RemoteBackend{client: client, namespace: cfg.Namespace, id: "remote:" + cfg.Addr}
}

// NewRemoteBackendFromClient wraps an already-constructed client, used by
// tests to point the backend at a miniredis instance.
func NewRemoteBackendFromClient(client goredis.UniversalClient, namespace string) *RemoteBackend {
	return &RemoteBackend{client: client, namespace: namespace, id: "remote:injected"}
}

func (b *RemoteBackend) BackendID() string      { return b.id }
func (b *RemoteBackend) RequiresEncoding() bool  { return true }
func (b *RemoteBackend) RequiresAsyncInit() bool { return true }

func (b *RemoteBackend) Init(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cachekv: remote ping: %w", err)
	}
	return nil
}

func (b *RemoteBackend) prefixed(key string) string {
	if b.namespace == "" {
		return key
	}
	return b.namespace + ":" + key
}

func (b *RemoteBackend) Get(ctx context.Context, key string) (any, bool, error) {
	val, err := b.client.Get(ctx, b.prefixed(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cachekv: remote get %q: %w", key, err)
	}
	return val, true, nil
}

func (b *RemoteBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cachekv: remote backend requires []byte, got %T", value)
	}
	if err := b.client.Set(ctx, b.prefixed(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cachekv: remote set %q: %w", key, err)
	}
	return nil
}

func (b *RemoteBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefixed(key)).Err(); err != nil {
		return fmt.Errorf("cachekv: remote delete %q: %w", key, err)
	}
	return nil
}

func (b *RemoteBackend) Has(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefixed(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cachekv: remote exists %q: %w", key, err)
	}
	return n > 0, nil
}

func (b *RemoteBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := b.client.Scan(ctx, 0, b.prefixed(pattern), 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cachekv: remote scan %q: %w", pattern, err)
	}
	return out, nil
}

func (b *RemoteBackend) Clear(ctx context.Context) error {
	keys, err := b.Keys(ctx, "*")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cachekv: remote clear: %w", err)
	}
	return nil
}

func (b *RemoteBackend) Close() error {
	return b.client.Close()
}
