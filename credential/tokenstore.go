package credential

import (
	"context"
	"fmt"

	"github.com/spinr-app/appcore/kvstore"
)

// StorageKey is where the bearer token persists. The "user_" name keeps it
// inside the logout purge scope alongside the profile entries.
const StorageKey = "cache:user_auth_token"

// TokenStore persists the backend-issued bearer token across launches.
// The token is stored verbatim; interpreting it is the server's job.
type TokenStore struct {
	storage kvstore.Store
}

func NewTokenStore(storage kvstore.Store) *TokenStore {
	return &TokenStore{storage: storage}
}

// Load returns the persisted token. A missing token is not an error.
func (t *TokenStore) Load(ctx context.Context) (string, bool, error) {
	token, found, err := t.storage.Get(ctx, StorageKey)
	if err != nil {
		return "", false, fmt.Errorf("loading auth token: %w", err)
	}
	return token, found, nil
}

// Save persists the token issued at sign-in.
func (t *TokenStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("refusing to save empty auth token")
	}
	if err := t.storage.Set(ctx, StorageKey, token); err != nil {
		return fmt.Errorf("saving auth token: %w", err)
	}
	return nil
}

// Clear removes the persisted token. Clearing an absent token is fine.
func (t *TokenStore) Clear(ctx context.Context) error {
	if err := t.storage.Remove(ctx, StorageKey); err != nil {
		return fmt.Errorf("clearing auth token: %w", err)
	}
	return nil
}
