// Package config loads the SDK configuration from the process environment.
package config

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	API       APIConfig
	Bootstrap BootstrapConfig
	Cache     CacheConfig
	Storage   StorageConfig
}

type APIConfig struct {
	// BaseURL is the root of the Spinr REST API, e.g. https://api.spinr.app/api/v1.
	BaseURL string `env:"SPINR_API_BASE_URL, required"`

	// TimeoutSeconds bounds every request; there are no transport retries.
	TimeoutSeconds int `env:"SPINR_API_TIMEOUT_SECS, default=15"`

	UserAgent string `env:"SPINR_API_USER_AGENT, default=spinr-appcore/1.0"`
}

type BootstrapConfig struct {
	// TimeoutMillis caps session initialization before the app renders
	// with whatever is cached.
	TimeoutMillis int `env:"SPINR_BOOTSTRAP_TIMEOUT_MILLIS, default=4000"`

	// ProfileTTLMinutes is the cache lifetime for user and driver profiles.
	ProfileTTLMinutes int `env:"SPINR_PROFILE_TTL_MINS, default=15"`
}

// CacheConfig specifies tiered cache tuning.
type CacheConfig struct {
	// DefaultTTLMinutes applies to responses with no policy table match.
	DefaultTTLMinutes int `env:"SPINR_CACHE_DEFAULT_TTL_MINS, default=5"`

	// MemoryMaxEntries bounds the in-process tier.
	MemoryMaxEntries int `env:"SPINR_CACHE_MEMORY_MAX_ENTRIES, default=4096"`
}

// StorageConfig selects and configures the durable key-value backend.
type StorageConfig struct {
	// Type selects the backend: "memory" (default), "file" or "redis".
	// The host platform decides this once at startup; nothing probes.
	Type string `env:"SPINR_STORAGE_TYPE, default=memory"`

	// File holds settings for the on-device sqlite backend.
	File FileStorageConfig

	// Redis holds settings for the shared redis backend (web/BFF deployments).
	Redis RedisStorageConfig

	// Seal holds settings for at-rest encryption of stored values.
	Seal SealConfig
}

// FileStorageConfig specifies the sqlite-backed device storage.
type FileStorageConfig struct {
	// Path is the sqlite database file. ":memory:" is accepted for tests.
	Path string `env:"SPINR_STORAGE_FILE_PATH"`
}

// RedisStorageConfig specifies the redis backend.
type RedisStorageConfig struct {
	// Address is the redis server address (host:port).
	Address string `env:"SPINR_STORAGE_REDIS_ADDRESS"`

	// TLS enables TLS connection to redis. Defaults to true; set to false
	// for local development only.
	TLS bool `env:"SPINR_STORAGE_REDIS_TLS, default=true"`

	// Username for redis authentication.
	Username string `env:"SPINR_STORAGE_REDIS_USERNAME"`

	// Password for redis authentication.
	Password string `env:"SPINR_STORAGE_REDIS_PASSWORD"`

	// DB is the redis logical database.
	DB int `env:"SPINR_STORAGE_REDIS_DB, default=0"`
}

// SealConfig holds settings for sealing stored values.
type SealConfig struct {
	// Enabled turns on at-rest encryption of stored values.
	Enabled bool `env:"SPINR_STORAGE_SEAL_ENABLED, default=false"`

	// Key is the base64-encoded 32-byte sealing key.
	Key string `env:"SPINR_STORAGE_SEAL_KEY"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Storage.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid storage configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the storage configuration is valid.
func (c *StorageConfig) Validate() error {
	switch c.Type {
	case "memory":
		// nothing to check
	case "file":
		if c.File.Path == "" {
			return fmt.Errorf("SPINR_STORAGE_FILE_PATH required when SPINR_STORAGE_TYPE=file")
		}
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("SPINR_STORAGE_REDIS_ADDRESS required when SPINR_STORAGE_TYPE=redis")
		}
	default:
		return fmt.Errorf("invalid storage type %q: expected memory, file or redis", c.Type)
	}

	if c.Seal.Enabled {
		key, err := base64.StdEncoding.DecodeString(c.Seal.Key)
		if err != nil {
			return fmt.Errorf("SPINR_STORAGE_SEAL_KEY must be base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("SPINR_STORAGE_SEAL_KEY must decode to 32 bytes, got %d", len(key))
		}
	}

	return nil
}

// SealKey decodes the configured sealing key. Call Validate first.
func (c *SealConfig) SealKey() []byte {
	key, _ := base64.StdEncoding.DecodeString(c.Key)
	return key
}
