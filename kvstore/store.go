// Package kvstore provides the durable key-value backends the cache tier
// persists into. The host platform selects one backend at startup; callers
// above the cache never learn which one is live.
package kvstore

import (
	"context"
)

// Store defines the interface for durable key-value backends.
// Values are opaque strings; the cache layer owns their format.
type Store interface {
	// Get retrieves a value from the store.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value, replacing any existing value for the key.
	Set(ctx context.Context, key string, value string) error

	// Remove deletes a value from the store. Removing an absent key is
	// not an error.
	Remove(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
