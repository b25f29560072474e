package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	"github.com/rs/zerolog/log"

	"github.com/spinr-app/appcore/kvstore"
)

// memoryTierTTL is the residency bound for the in-process tier. It is an
// upper bound only: the envelope's own TTL decides freshness, and an entry
// evicted early is re-read from the durable tier.
const memoryTierTTL = 24 * time.Hour

// Store is the tiered cache: an otter-backed memory tier in front of the
// durable kvstore backend. Reads check memory first and fall back to
// storage; writes land in both tiers before returning.
type Store struct {
	memory     *otter.Cache[string, Entry]
	storage    kvstore.Store
	counter    *stats.Counter
	defaultTTL time.Duration

	// now is replaced in tests to drive TTL expiry without sleeping.
	now func() time.Time

	// mu guards tracked and serializes updates of the persisted
	// user-key index.
	mu      sync.Mutex
	tracked map[string]struct{}
}

// NewStore creates a tiered store over the given backend.
func NewStore(storage kvstore.Store, defaultTTL time.Duration, maxMemoryEntries int) *Store {
	initMetrics()

	counter := stats.NewCounter()
	memory := otter.Must(&otter.Options[string, Entry]{
		MaximumSize:      maxMemoryEntries,
		StatsRecorder:    counter,
		ExpiryCalculator: otter.ExpiryCreating[string, Entry](memoryTierTTL),
	})

	return &Store{
		memory:     memory,
		storage:    storage,
		counter:    counter,
		defaultTTL: defaultTTL,
		now:        time.Now,
		tracked:    make(map[string]struct{}),
	}
}

// Get retrieves and decodes a fresh entry. A stale, unreadable or missing
// entry is a miss; stale and unreadable entries are purged from both tiers
// on the way through. Backend read failures are logged and reported as a
// miss so a flaky disk or redis blip degrades to a refetch, never an error
// surfaced to the caller.
func Get[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T
	start := time.Now()

	if cached, ok := s.memory.GetEntry(key); ok {
		entry := cached.Value
		if entry.Expired(s.now()) {
			s.purge(ctx, key)
			recordOperation(ctx, "get", statusExpired, time.Since(start))
			return zero, false
		}

		value, err := decode[T](entry)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("purging undecodable cache entry")
			s.purge(ctx, key)
			recordOperation(ctx, "get", statusError, time.Since(start))
			return zero, false
		}

		recordOperation(ctx, "get", statusHitMemory, time.Since(start))
		return value, true
	}

	raw, found, err := s.storage.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("storage read failed, treating as cache miss")
		recordOperation(ctx, "get", statusError, time.Since(start))
		return zero, false
	}
	if !found {
		recordOperation(ctx, "get", statusMiss, time.Since(start))
		return zero, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("purging malformed cache envelope")
		s.purge(ctx, key)
		recordOperation(ctx, "get", statusError, time.Since(start))
		return zero, false
	}

	if entry.Expired(s.now()) {
		s.purge(ctx, key)
		recordOperation(ctx, "get", statusExpired, time.Since(start))
		return zero, false
	}

	value, err := decode[T](entry)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("purging undecodable cache entry")
		s.purge(ctx, key)
		recordOperation(ctx, "get", statusError, time.Since(start))
		return zero, false
	}

	// Promote so the next read is served from memory.
	s.memory.Set(key, entry)
	s.track(ctx, key)

	recordOperation(ctx, "get", statusHitStorage, time.Since(start))
	return value, true
}

// GetOrFetch returns the cached value for key, or runs fetch and caches its
// result under the given TTL (zero means the store default). Fetch errors
// propagate and nothing is cached; a failed cache write is logged but does
// not fail the call, since the fetched value is already in hand.
func GetOrFetch[T any](ctx context.Context, s *Store, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if value, ok := Get[T](ctx, s, key); ok {
		return value, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := s.Set(ctx, key, value, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("caching fetched value failed")
	}

	return value, nil
}

// Set stores value under key in both tiers. A zero ttl applies the store
// default. The durable write happens before returning; its failure is
// returned (and logged) so callers never mistake a memory-only write for a
// durable one.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	start := time.Now()

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		recordOperation(ctx, "set", statusError, time.Since(start))
		return fmt.Errorf("encoding value for key %q: %w", key, err)
	}

	entry := Entry{
		Data:     data,
		StoredAt: s.now().UTC(),
		TTL:      Duration(ttl),
	}

	s.memory.Set(key, entry)
	s.track(ctx, key)

	envelope, err := json.Marshal(entry)
	if err != nil {
		recordOperation(ctx, "set", statusError, time.Since(start))
		return fmt.Errorf("encoding envelope for key %q: %w", key, err)
	}

	if err := s.storage.Set(ctx, key, string(envelope)); err != nil {
		log.Error().Err(err).Str("key", key).Msg("durable cache write failed")
		recordOperation(ctx, "set", statusError, time.Since(start))
		return fmt.Errorf("storing key %q: %w", key, err)
	}

	recordOperation(ctx, "set", statusSuccess, time.Since(start))
	return nil
}

// Has reports whether a fresh entry exists for key, without decoding it.
func (s *Store) Has(ctx context.Context, key string) bool {
	if cached, ok := s.memory.GetEntry(key); ok {
		return !cached.Value.Expired(s.now())
	}

	raw, found, err := s.storage.Get(ctx, key)
	if err != nil || !found {
		return false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return false
	}

	return !entry.Expired(s.now())
}

// Remove deletes key from both tiers.
func (s *Store) Remove(ctx context.Context, key string) error {
	start := time.Now()

	s.memory.Invalidate(key)

	err := s.storage.Remove(ctx, key)
	status := statusSuccess
	if err != nil {
		status = statusError
		err = fmt.Errorf("removing key %q: %w", key, err)
	}
	recordOperation(ctx, "remove", status, time.Since(start))

	return err
}

// ClearUserScope purges every user-scoped entry from both tiers: the keys
// written during this process lifetime plus those recorded in the persisted
// index by earlier ones. Keys whose durable removal fails stay in the index
// so the next logout retries them.
func (s *Store) ClearUserScope(ctx context.Context) error {
	s.mu.Lock()
	keys := make(map[string]struct{}, len(s.tracked))
	for key := range s.tracked {
		keys[key] = struct{}{}
	}
	s.mu.Unlock()

	for _, key := range s.loadUserKeyIndex(ctx) {
		keys[key] = struct{}{}
	}

	var errs []error
	var failed []string
	for key := range keys {
		s.memory.Invalidate(key)
		if err := s.storage.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("removing key %q: %w", key, err))
			failed = append(failed, key)
		}
	}

	s.mu.Lock()
	s.tracked = make(map[string]struct{})
	s.mu.Unlock()

	if err := s.writeUserKeyIndex(ctx, failed); err != nil {
		errs = append(errs, err)
	}

	log.Info().Int("purged", len(keys)-len(failed)).Int("failed", len(failed)).
		Msg("cleared user-scoped cache entries")

	return errors.Join(errs...)
}

// track records a user-scoped key in the in-memory set and, on first
// sighting, in the persisted index.
func (s *Store) track(ctx context.Context, key string) {
	if !UserScoped(key) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracked[key]; ok {
		return
	}
	s.tracked[key] = struct{}{}

	index := s.loadUserKeyIndex(ctx)
	for _, existing := range index {
		if existing == key {
			return
		}
	}

	if err := s.writeUserKeyIndex(ctx, append(index, key)); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("updating user-key index failed")
	}
}

func (s *Store) loadUserKeyIndex(ctx context.Context) []string {
	raw, found, err := s.storage.Get(ctx, userKeyIndexKey)
	if err != nil {
		log.Warn().Err(err).Msg("reading user-key index failed")
		return nil
	}
	if !found {
		return nil
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		log.Warn().Err(err).Msg("user-key index is malformed, resetting")
		return nil
	}
	return keys
}

func (s *Store) writeUserKeyIndex(ctx context.Context, keys []string) error {
	if keys == nil {
		keys = []string{}
	}

	raw, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encoding user-key index: %w", err)
	}

	if err := s.storage.Set(ctx, userKeyIndexKey, string(raw)); err != nil {
		return fmt.Errorf("writing user-key index: %w", err)
	}
	return nil
}

// purge drops key from both tiers, logging (not returning) removal
// failures: purging is hygiene on the read path, and the read itself
// already reports a miss.
func (s *Store) purge(ctx context.Context, key string) {
	s.memory.Invalidate(key)
	if err := s.storage.Remove(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("purging cache entry from storage failed")
	}
}

func decode[T any](entry Entry) (T, error) {
	var value T
	if err := json.Unmarshal(entry.Data, &value); err != nil {
		return value, fmt.Errorf("decoding cache entry: %w", err)
	}
	return value, nil
}
