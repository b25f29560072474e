package kvstore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
)

// valuePrefix marks sealed values so a plaintext entry left over from a
// build without sealing is recognized (and rejected) during rollout.
const valuePrefix = "senc:"

// storageKeyPrefix namespaces sealed entries away from plaintext ones.
const storageKeyPrefix = "sealed:"

// Sealed wraps a Store and encrypts every value at rest. Values are sealed
// with XChaCha20-Poly1305 using the logical key as associated data, so a
// ciphertext copied between keys fails to open.
type Sealed struct {
	inner Store
	aead  cipher.AEAD
}

// NewSealed creates a sealing wrapper around inner. The key must be
// 32 bytes (config.SealConfig validates this).
func NewSealed(inner Store, key []byte) (*Sealed, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

// Get retrieves and opens a sealed value. Unsealing failures are returned
// as errors; the corrupted entry is removed on a best-effort basis so the
// next write starts clean.
func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	storageKey := s.storageKey(key)

	value, found, err := s.inner.Get(ctx, storageKey)
	if err != nil || !found {
		return "", found, err
	}

	plaintext, err := s.open(value, key)
	if err != nil {
		if removeErr := s.inner.Remove(ctx, storageKey); removeErr != nil {
			log.Warn().Err(removeErr).Str("key", key).Msg("failed to remove unreadable sealed entry")
		}
		return "", false, fmt.Errorf("unsealing value for key %q: %w", key, err)
	}

	return plaintext, true, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value string) error {
	sealed, err := s.seal(value, key)
	if err != nil {
		return fmt.Errorf("sealing value for key %q: %w", key, err)
	}
	return s.inner.Set(ctx, s.storageKey(key), sealed)
}

func (s *Sealed) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, s.storageKey(key))
}

func (s *Sealed) Close() error {
	return s.inner.Close()
}

func (s *Sealed) storageKey(key string) string {
	return storageKeyPrefix + key
}

func (s *Sealed) seal(value string, key string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	// nonce || ciphertext, with the logical key binding the entry.
	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return valuePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Sealed) open(value string, key string) (string, error) {
	if !strings.HasPrefix(value, valuePrefix) {
		return "", fmt.Errorf("missing %q prefix: value may be unsealed or corrupted", valuePrefix)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, valuePrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}

	if len(decoded) < s.aead.NonceSize() {
		return "", fmt.Errorf("sealed value shorter than nonce")
	}

	nonce, ciphertext := decoded[:s.aead.NonceSize()], decoded[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}

	return string(plaintext), nil
}
