package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinr-app/appcore/kvstore"
)

type vehicleTypeFixture struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// fakeClock drives TTL expiry without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyStore wraps a real backend with switchable failures.
type flakyStore struct {
	kvstore.Store
	failGet    bool
	failSet    bool
	failRemove bool
}

var errBackend = errors.New("backend unavailable")

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errBackend
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value string) error {
	if f.failSet {
		return errBackend
	}
	return f.Store.Set(ctx, key, value)
}

func (f *flakyStore) Remove(ctx context.Context, key string) error {
	if f.failRemove {
		return errBackend
	}
	return f.Store.Remove(ctx, key)
}

func newTestStore(t *testing.T) (*Store, *kvstore.Memory, *fakeClock) {
	t.Helper()

	backend := kvstore.NewMemory()
	store := NewStore(backend, 5*time.Minute, 100)
	clock := newFakeClock()
	store.now = clock.Now

	return store, backend, clock
}

func TestStoreGet_Miss(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	value, found := Get[vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.False(t, found)
	assert.Equal(t, vehicleTypeFixture{}, value)
}

func TestStoreSetAndGet(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)

	expected := []vehicleTypeFixture{{Name: "Economy", Capacity: 4}}
	err := store.Set(ctx, "cache:vehicle_types", expected, time.Hour)
	require.NoError(t, err)

	value, found := Get[[]vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.True(t, found)
	assert.Equal(t, expected, value)

	// The durable tier carries the full envelope.
	raw, found, err := backend.Get(ctx, "cache:vehicle_types")
	require.NoError(t, err)
	require.True(t, found)

	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))
	assert.Equal(t, Duration(time.Hour), entry.TTL)
}

func TestStoreGet_FallsBackToStorageAndPromotes(t *testing.T) {
	ctx := context.Background()
	store, backend, clock := newTestStore(t)

	// An entry written by an earlier process lifetime: present in the
	// durable tier only.
	entry := Entry{
		Data:     json.RawMessage(`{"name":"Economy","capacity":4}`),
		StoredAt: clock.Now(),
		TTL:      Duration(time.Hour),
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, backend.Set(ctx, "cache:vehicle_types", string(raw)))

	value, found := Get[vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	require.True(t, found)
	assert.Equal(t, vehicleTypeFixture{Name: "Economy", Capacity: 4}, value)

	// The read promoted the entry: remove it from the backend and the
	// memory tier still answers.
	require.NoError(t, backend.Remove(ctx, "cache:vehicle_types"))
	value, found = Get[vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.True(t, found)
	assert.Equal(t, "Economy", value.Name)
}

func TestStoreTTL_FreshThenStale(t *testing.T) {
	ctx := context.Background()
	store, backend, clock := newTestStore(t)

	require.NoError(t, store.Set(ctx, "cache:vehicle_types", []vehicleTypeFixture{{Name: "Economy"}}, time.Hour))

	clock.Advance(59 * time.Minute)
	_, found := Get[[]vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.True(t, found, "59 minutes into a one hour TTL is fresh")

	clock.Advance(2 * time.Minute)
	_, found = Get[[]vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.False(t, found, "61 minutes into a one hour TTL is stale")

	// Stale entries are purged from both tiers on the way through.
	_, foundInBackend, err := backend.Get(ctx, "cache:vehicle_types")
	require.NoError(t, err)
	assert.False(t, foundInBackend)
}

func TestStoreGet_ExpiredStorageEntryPurged(t *testing.T) {
	ctx := context.Background()
	store, backend, clock := newTestStore(t)

	entry := Entry{
		Data:     json.RawMessage(`{"name":"Economy"}`),
		StoredAt: clock.Now().Add(-2 * time.Hour),
		TTL:      Duration(time.Hour),
	}
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, backend.Set(ctx, "cache:vehicle_types", string(raw)))

	_, found := Get[vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.False(t, found)

	_, foundInBackend, err := backend.Get(ctx, "cache:vehicle_types")
	require.NoError(t, err)
	assert.False(t, foundInBackend)
}

func TestStoreGet_MalformedEnvelopePurged(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)

	require.NoError(t, backend.Set(ctx, "cache:vehicle_types", "not-json"))

	_, found := Get[vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.False(t, found)

	_, foundInBackend, err := backend.Get(ctx, "cache:vehicle_types")
	require.NoError(t, err)
	assert.False(t, foundInBackend, "unreadable entries are purged, not retried forever")
}

func TestStoreGet_StorageErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: kvstore.NewMemory(), failGet: true}
	store := NewStore(flaky, 5*time.Minute, 100)

	value, found := Get[vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.False(t, found)
	assert.Equal(t, vehicleTypeFixture{}, value)
}

func TestStoreSet_StorageErrorReturned(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: kvstore.NewMemory(), failSet: true}
	store := NewStore(flaky, 5*time.Minute, 100)

	err := store.Set(ctx, "cache:vehicle_types", vehicleTypeFixture{Name: "Economy"}, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackend)

	// The memory tier still serves the value for this process lifetime.
	value, found := Get[vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.True(t, found)
	assert.Equal(t, "Economy", value.Name)
}

func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)

	require.NoError(t, store.Set(ctx, "cache:vehicle_types", vehicleTypeFixture{Name: "Economy"}, time.Hour))
	require.NoError(t, store.Remove(ctx, "cache:vehicle_types"))

	_, found := Get[vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.False(t, found)

	_, foundInBackend, err := backend.Get(ctx, "cache:vehicle_types")
	require.NoError(t, err)
	assert.False(t, foundInBackend)
}

func TestStoreHas(t *testing.T) {
	ctx := context.Background()
	store, _, clock := newTestStore(t)

	assert.False(t, store.Has(ctx, "cache:vehicle_types"))

	require.NoError(t, store.Set(ctx, "cache:vehicle_types", vehicleTypeFixture{Name: "Economy"}, time.Hour))
	assert.True(t, store.Has(ctx, "cache:vehicle_types"))

	clock.Advance(2 * time.Hour)
	assert.False(t, store.Has(ctx, "cache:vehicle_types"))
}

func TestStoreClearUserScope(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)

	require.NoError(t, store.Set(ctx, UserProfileKey, map[string]string{"id": "u1"}, time.Hour))
	require.NoError(t, store.Set(ctx, DriverProfileKey, map[string]string{"id": "d1"}, time.Hour))
	require.NoError(t, store.Set(ctx, KeyPrefix+"driver_documents", []string{"licence"}, time.Hour))
	require.NoError(t, store.Set(ctx, "cache:vehicle_types", []vehicleTypeFixture{{Name: "Economy"}}, time.Hour))

	require.NoError(t, store.ClearUserScope(ctx))

	_, found := Get[map[string]string](ctx, store, UserProfileKey)
	assert.False(t, found, "user profile must be purged")
	_, found = Get[map[string]string](ctx, store, DriverProfileKey)
	assert.False(t, found, "driver profile must be purged")
	_, found = Get[[]string](ctx, store, KeyPrefix+"driver_documents")
	assert.False(t, found, "driver documents must be purged")

	_, found = Get[[]vehicleTypeFixture](ctx, store, "cache:vehicle_types")
	assert.True(t, found, "reference data survives logout")

	// Purged from the durable tier too, not just memory.
	_, foundInBackend, err := backend.Get(ctx, UserProfileKey)
	require.NoError(t, err)
	assert.False(t, foundInBackend)
}

func TestStoreClearUserScope_PreviousProcessLifetime(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemory()

	// First lifetime writes user-scoped entries and exits.
	first := NewStore(backend, 5*time.Minute, 100)
	require.NoError(t, first.Set(ctx, UserProfileKey, map[string]string{"id": "u1"}, time.Hour))
	require.NoError(t, first.Set(ctx, "cache:vehicle_types", "ref", time.Hour))

	// Second lifetime has an empty in-memory key set but shares the
	// backend: logout must still purge the persisted user entries.
	second := NewStore(backend, 5*time.Minute, 100)
	require.NoError(t, second.ClearUserScope(ctx))

	_, found, err := backend.Get(ctx, UserProfileKey)
	require.NoError(t, err)
	assert.False(t, found, "user entries from earlier lifetimes must be purged")

	_, found, err = backend.Get(ctx, "cache:vehicle_types")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStoreClearUserScope_FailedRemovalStaysIndexed(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: kvstore.NewMemory()}
	store := NewStore(flaky, 5*time.Minute, 100)

	require.NoError(t, store.Set(ctx, UserProfileKey, map[string]string{"id": "u1"}, time.Hour))

	flaky.failRemove = true
	err := store.ClearUserScope(ctx)
	require.Error(t, err)

	// Once the backend recovers, a retry purges the remembered key even
	// though the in-memory set was already reset.
	flaky.failRemove = false
	require.NoError(t, store.ClearUserScope(ctx))

	_, found, err := flaky.Store.Get(ctx, UserProfileKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetOrFetch_FetchesOnceThenServesFromCache(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	fetches := 0
	fetch := func(context.Context) (vehicleTypeFixture, error) {
		fetches++
		return vehicleTypeFixture{Name: "Economy", Capacity: 4}, nil
	}

	value, err := GetOrFetch(ctx, store, "cache:vehicle_types", time.Hour, fetch)
	require.NoError(t, err)
	assert.Equal(t, "Economy", value.Name)
	assert.Equal(t, 1, fetches)

	value, err = GetOrFetch(ctx, store, "cache:vehicle_types", time.Hour, fetch)
	require.NoError(t, err)
	assert.Equal(t, "Economy", value.Name)
	assert.Equal(t, 1, fetches, "second call must be served from cache")
}

func TestGetOrFetch_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	fetchErr := errors.New("upstream down")
	fetches := 0

	_, err := GetOrFetch(ctx, store, "cache:vehicle_types", time.Hour, func(context.Context) (vehicleTypeFixture, error) {
		fetches++
		return vehicleTypeFixture{}, fetchErr
	})
	assert.ErrorIs(t, err, fetchErr)

	// The failure is not cached: the next call fetches again.
	_, err = GetOrFetch(ctx, store, "cache:vehicle_types", time.Hour, func(context.Context) (vehicleTypeFixture, error) {
		fetches++
		return vehicleTypeFixture{Name: "Economy"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestGetOrFetch_CacheWriteFailureStillReturnsValue(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: kvstore.NewMemory(), failSet: true}
	store := NewStore(flaky, 5*time.Minute, 100)

	value, err := GetOrFetch(ctx, store, "cache:vehicle_types", time.Hour, func(context.Context) (vehicleTypeFixture, error) {
		return vehicleTypeFixture{Name: "Economy"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Economy", value.Name)
}

func TestStoreSet_DefaultTTLWhenZero(t *testing.T) {
	ctx := context.Background()
	store, backend, _ := newTestStore(t)

	require.NoError(t, store.Set(ctx, "cache:promotions_current", "v", 0))

	raw, found, err := backend.Get(ctx, "cache:promotions_current")
	require.NoError(t, err)
	require.True(t, found)

	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))
	assert.Equal(t, Duration(5*time.Minute), entry.TTL)
}
