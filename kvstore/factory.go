package kvstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/spinr-app/appcore/config"
)

// NewFromConfig creates a storage backend based on the provided configuration.
// It returns the store and any error encountered.
//
// The storage type must be "memory", "file" or "redis". Any other value
// returns an error. The selection happens exactly once: nothing downstream
// probes for a backend at runtime.
func NewFromConfig(ctx context.Context, storageConfig config.StorageConfig) (Store, error) {
	var store Store

	switch storageConfig.Type {
	case "memory":
		log.Info().
			Str("storage_type", "memory").
			Msg("initializing in-process storage")

		store = NewMemory()

	case "file":
		log.Info().
			Str("storage_type", "file").
			Str("path", storageConfig.File.Path).
			Msg("initializing device storage")

		if storageConfig.File.Path == "" {
			return nil, fmt.Errorf("file path is required when storage type is file")
		}

		sqlite, err := NewSQLite(ctx, storageConfig.File.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create device storage: %w", err)
		}
		store = sqlite

	case "redis":
		log.Info().
			Str("storage_type", "redis").
			Str("address", storageConfig.Redis.Address).
			Bool("tls", storageConfig.Redis.TLS).
			Msg("initializing redis storage")

		if storageConfig.Redis.Address == "" {
			return nil, fmt.Errorf("redis address is required when storage type is redis")
		}

		redis, err := NewRedis(ctx, storageConfig.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis storage: %w", err)
		}
		store = redis

	default:
		return nil, fmt.Errorf("invalid storage type %q: must be \"memory\", \"file\" or \"redis\"", storageConfig.Type)
	}

	if storageConfig.Seal.Enabled {
		sealed, err := NewSealed(store, storageConfig.Seal.SealKey())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("initializing sealed storage: %w", err)
		}

		log.Info().Msg("storage sealing enabled")
		store = sealed
	}

	return store, nil
}
