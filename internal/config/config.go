// Package config provides configuration management with hot-reload
// support. It uses fsnotify to watch for file changes and atomic
// pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KathyBarabash/asg-runtime/internal/cachekv"
	"github.com/KathyBarabash/asg-runtime/internal/serializer"
)

// Config represents the complete runtime configuration: the HTTP server
// that exposes GetEndpointData, the two cache tiers (response and
// origin), the origin fetcher's retry/pagination/rate-limit behavior,
// and logging.
type Config struct {
	Server        ServerConfig    `yaml:"server"`
	ResponseCache CacheTierConfig `yaml:"response_cache"`
	OriginCache   CacheTierConfig `yaml:"origin_cache"`
	Fetcher       FetcherConfig   `yaml:"fetcher"`
	Logging       LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server settings for the runtime's own API
// (POST /endpoint-data, GET /stats, the cache-management endpoints).
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// CacheTierConfig selects and configures one of the runtime's two cache
// tiers (response cache or origin cache), each independently enabled,
// backed and serialized. TTL is parsed and validated, but the cache
// writes of the executor and the origin fetcher do not use it: they store
// entries with no expiry.
type CacheTierConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Backend    cachekv.Config  `yaml:"backend"`
	Serializer serializer.Kind `yaml:"serializer"`
	TTL        time.Duration   `yaml:"ttl"`
}

// FetcherConfig bounds how the origin fetcher talks to upstreams, layered
// on top of httpfetch's per-request retry/backoff loop.
type FetcherConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	MaxPages     int           `yaml:"max_pages"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// Per-origin-host outbound pacing, independent of per-request retry.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`

	MaxResponseBodyBytes int64 `yaml:"max_response_body_bytes"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with sensible defaults: an
// in-memory LRU backend for the response cache, the origin cache
// disabled, and conservative fetcher bounds.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		ResponseCache: CacheTierConfig{
			Enabled:    true,
			Backend:    cachekv.DefaultConfig(),
			Serializer: serializer.KindJSON,
			TTL:        time.Hour,
		},
		OriginCache: CacheTierConfig{
			Enabled:    false,
			Backend:    cachekv.DefaultConfig(),
			Serializer: serializer.KindJSON,
			TTL:        10 * time.Minute,
		},
		Fetcher: FetcherConfig{
			Timeout:              10 * time.Second,
			MaxRetries:           3,
			MaxPages:             10,
			RetryBackoff:         500 * time.Millisecond,
			RateLimitPerSecond:   10,
			RateLimitBurst:       5,
			MaxResponseBodyBytes: 10 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout cannot be negative")
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout cannot be negative")
	}
	if c.Server.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout cannot be negative")
	}

	if err := c.ResponseCache.validate("response_cache"); err != nil {
		return err
	}
	if err := c.OriginCache.validate("origin_cache"); err != nil {
		return err
	}

	if c.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be positive")
	}
	if c.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries cannot be negative")
	}
	if c.Fetcher.MaxPages <= 0 {
		return fmt.Errorf("fetcher.max_pages must be positive")
	}
	if c.Fetcher.RetryBackoff < 0 {
		return fmt.Errorf("fetcher.retry_backoff cannot be negative")
	}
	if c.Fetcher.RateLimitPerSecond < 0 {
		return fmt.Errorf("fetcher.rate_limit_per_second cannot be negative")
	}
	if c.Fetcher.RateLimitBurst < 0 {
		return fmt.Errorf("fetcher.rate_limit_burst cannot be negative")
	}
	if c.Fetcher.MaxResponseBodyBytes < 0 {
		return fmt.Errorf("fetcher.max_response_body_bytes cannot be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

func (c *CacheTierConfig) validate(field string) error {
	if !c.Enabled {
		return nil
	}
	if c.TTL < 0 {
		return fmt.Errorf("%s.ttl cannot be negative", field)
	}
	switch c.Backend.Kind {
	case cachekv.KindLRU, "":
		if c.Backend.LRU.MaxEntries <= 0 {
			return fmt.Errorf("%s.backend.lru.max_entries must be positive", field)
		}
	case cachekv.KindDisk:
		if c.Backend.Disk.Dir == "" {
			return fmt.Errorf("%s.backend.disk.dir is required", field)
		}
	case cachekv.KindRemote:
		if c.Backend.Remote.Addr == "" && len(c.Backend.Remote.ClusterAddrs) == 0 {
			return fmt.Errorf("%s.backend.remote.addr or cluster_addrs is required", field)
		}
	default:
		return fmt.Errorf("%s.backend.kind %q is not supported", field, c.Backend.Kind)
	}
	return nil
}
