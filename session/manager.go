package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/spinr-app/appcore/api"
	"github.com/spinr-app/appcore/cache"
	"github.com/spinr-app/appcore/config"
	"github.com/spinr-app/appcore/credential"
)

// Manager owns the session snapshot. It is the sole writer; readers take
// copies via Snapshot. All methods are safe for concurrent use.
type Manager struct {
	client     *api.Client
	cache      *cache.Store
	creds      *credential.Resolver
	tokens     *credential.TokenStore
	timeout    time.Duration
	profileTTL time.Duration

	group singleflight.Group

	mu sync.RWMutex
	// gen invalidates in-flight resolution pipelines: a pipeline may only
	// publish results for the generation it was started under, so a logout
	// can never be overwritten by a stale bootstrap.
	gen         uint64
	current     Session
	initialized chan struct{}
}

// NewManager builds a Manager around the API client and its supporting
// stores. The session starts at StateIdle; call Initialize to resolve it.
func NewManager(client *api.Client, store *cache.Store, creds *credential.Resolver, tokens *credential.TokenStore, cfg config.BootstrapConfig) *Manager {
	return &Manager{
		client:      client,
		cache:       store,
		creds:       creds,
		tokens:      tokens,
		timeout:     time.Duration(cfg.TimeoutMillis) * time.Millisecond,
		profileTTL:  time.Duration(cfg.ProfileTTLMinutes) * time.Minute,
		initialized: make(chan struct{}),
	}
}

// Snapshot returns a copy of the current session.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Initialized returns a channel that closes once bootstrap reaches a
// decision. Logout replaces the channel; callers should re-request it
// after signing out.
func (m *Manager) Initialized() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Initialize resolves the session and returns the resulting snapshot. It
// is idempotent: once a decision is reached, repeat calls return the
// current snapshot without re-running resolution, and concurrent calls
// share a single resolution.
//
// Resolution races the bootstrap timer. If the timer fires first the
// session is forced to StateDegraded so the host app can render, and the
// pipeline continues in the background, updating the snapshot when it
// completes without re-firing Initialized.
func (m *Manager) Initialize(ctx context.Context) Session {
	if snap := m.Snapshot(); snap.Initialized {
		return snap
	}

	result, _, _ := m.group.Do("initialize", func() (any, error) {
		return m.initialize(ctx), nil
	})
	return result.(Session)
}

func (m *Manager) initialize(ctx context.Context) Session {
	m.mu.Lock()
	if m.current.Initialized {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	gen := m.gen
	m.current.State = StateResolving
	m.current.Loading = true
	m.mu.Unlock()

	// The pipeline must survive the caller's deadline: when the timer
	// wins, resolution keeps going and late-applies its result.
	pipelineCtx := context.WithoutCancel(ctx)
	done := make(chan Session, 1)
	go func() {
		done <- m.resolve(pipelineCtx, gen)
	}()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case snap := <-done:
		return snap
	case <-timer.C:
		log.Warn().
			Dur("timeout", m.timeout).
			Msg("session bootstrap timed out, continuing in background")
		return m.forceDegraded(ctx, gen)
	case <-ctx.Done():
		return m.forceDegraded(ctx, gen)
	}
}

// resolve runs the bootstrap pipeline and publishes its outcome.
func (m *Manager) resolve(ctx context.Context, gen uint64) Session {
	tracer := otel.Tracer("github.com/spinr-app/appcore/session")
	ctx, span := tracer.Start(ctx, "session_resolve")
	defer span.End()

	cred := m.creds.Resolve(ctx)
	if cred.Kind == credential.KindNone {
		// No credential to validate. Make sure nothing personal lingers
		// from an expired session, then land without touching the network.
		_ = m.tokens.Clear(ctx)
		if err := m.cache.ClearUserScope(ctx); err != nil {
			log.Warn().Err(err).Msg("clearing user cache for anonymous session")
		}
		span.SetStatus(codes.Ok, "anonymous")
		return m.apply(gen, Session{State: StateAnonymous})
	}

	// The fetch skips the cache in both directions: a hit would defeat
	// validation, and writes may only happen once the result is known to
	// still belong to this generation.
	profile, err := api.Get[api.UserProfile](ctx, m.client, "/auth/me", api.GetOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "profile fetch failed")
		return m.resolveFailed(ctx, gen, cred, err)
	}

	next := Session{
		State:      StateHydrated,
		Credential: cred.Kind,
		Token:      cred.Token,
		Profile:    &profile,
	}
	if profile.IsDriver {
		next.DriverProfile = m.fetchDriver(ctx)
	}

	snap, applied := m.applyIf(gen, next)
	if !applied {
		return snap
	}

	if cred.Kind == credential.KindBearer {
		if err := m.tokens.Save(ctx, cred.Token); err != nil {
			log.Warn().Err(err).Msg("persisting session token")
		}
	}
	_ = m.cache.Set(ctx, cache.UserProfileKey, profile, m.profileTTL)
	if next.DriverProfile != nil {
		_ = m.cache.Set(ctx, cache.DriverProfileKey, *next.DriverProfile, m.profileTTL)
	}

	span.SetStatus(codes.Ok, "hydrated")
	return snap
}

// resolveFailed lands the pipeline when the profile fetch errors: an auth
// rejection signs the user out, anything else degrades to cached data.
func (m *Manager) resolveFailed(ctx context.Context, gen uint64, cred credential.Credential, err error) Session {
	if errors.Is(err, api.ErrUnauthorized) {
		log.Info().Msg("stored credential rejected, signing out")
		if clearErr := errors.Join(m.tokens.Clear(ctx), m.cache.ClearUserScope(ctx)); clearErr != nil {
			log.Warn().Err(clearErr).Msg("clearing rejected session")
		}
		return m.apply(gen, Session{State: StateAnonymous})
	}

	next := Session{
		State:      StateDegraded,
		Credential: cred.Kind,
		Token:      cred.Token,
		Err:        err,
	}
	if cached, ok := cache.Get[api.UserProfile](ctx, m.cache, cache.UserProfileKey); ok {
		next.Profile = &cached
		if cached.IsDriver {
			if driver, ok := cache.Get[api.DriverProfile](ctx, m.cache, cache.DriverProfileKey); ok {
				next.DriverProfile = &driver
			}
		}
	}

	log.Warn().Err(err).Bool("cached_profile", next.Profile != nil).
		Msg("session degraded")
	return m.apply(gen, next)
}

// fetchDriver loads the driver record. Bootstrap tolerates its absence.
func (m *Manager) fetchDriver(ctx context.Context) *api.DriverProfile {
	driver, err := api.Get[api.DriverProfile](ctx, m.client, "/drivers/me", api.GetOptions{})
	if err != nil {
		log.Debug().Err(err).Msg("driver profile unavailable")
		return nil
	}
	return &driver
}

// apply publishes next as the session outcome, unless a logout has
// invalidated the pipeline's generation.
func (m *Manager) apply(gen uint64, next Session) Session {
	snap, _ := m.applyIf(gen, next)
	return snap
}

// applyIf publishes next when gen is still current and reports whether it
// did. Callers with side effects to persist must check the flag first.
func (m *Manager) applyIf(gen uint64, next Session) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		log.Debug().Msg("discarding stale session resolution")
		return m.snapshotLocked(), false
	}

	next.Initialized = true
	next.Loading = false
	m.current = next
	m.closeInitializedLocked()
	return m.snapshotLocked(), true
}

// forceDegraded flips the session so the host app can render, leaving any
// in-flight pipeline to late-apply the real outcome.
func (m *Manager) forceDegraded(ctx context.Context, gen uint64) Session {
	cached, ok := cache.Get[api.UserProfile](ctx, m.cache, cache.UserProfileKey)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen || m.current.Initialized {
		return m.snapshotLocked()
	}

	m.current.State = StateDegraded
	m.current.Initialized = true
	m.current.Loading = false
	if ok {
		m.current.Profile = &cached
	}
	m.closeInitializedLocked()
	return m.snapshotLocked()
}

// Logout clears the session locally: the stored token and all user-scoped
// cache entries are removed and the session returns to StateIdle. The
// backend keeps no session state, so nothing is sent to it.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.gen++
	m.current = Session{}
	m.initialized = make(chan struct{})
	m.mu.Unlock()

	if err := errors.Join(m.tokens.Clear(ctx), m.cache.ClearUserScope(ctx)); err != nil {
		return fmt.Errorf("clearing session state: %w", err)
	}

	log.Info().Msg("session cleared")
	return nil
}

// Refresh re-validates the credential and re-fetches the profile outside
// of bootstrap. The snapshot is updated in place; Initialized never flips
// back. The returned error is the degradation cause, if any.
func (m *Manager) Refresh(ctx context.Context) (Session, error) {
	m.mu.RLock()
	gen := m.gen
	m.mu.RUnlock()

	snap := m.resolve(ctx, gen)
	return snap, snap.Err
}

func (m *Manager) snapshotLocked() Session {
	snap := m.current
	if m.current.Profile != nil {
		profile := *m.current.Profile
		snap.Profile = &profile
	}
	if m.current.DriverProfile != nil {
		driver := *m.current.DriverProfile
		snap.DriverProfile = &driver
	}
	return snap
}

func (m *Manager) closeInitializedLocked() {
	select {
	case <-m.initialized:
	default:
		close(m.initialized)
	}
}
