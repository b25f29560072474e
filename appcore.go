// Package appcore assembles the Spinr client SDK: configuration, durable
// key-value storage, the tiered cache, credential resolution, the REST
// client, and session bootstrap, wired once and shared for the life of
// the process.
package appcore

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/spinr-app/appcore/api"
	"github.com/spinr-app/appcore/cache"
	"github.com/spinr-app/appcore/config"
	"github.com/spinr-app/appcore/credential"
	"github.com/spinr-app/appcore/kvstore"
	"github.com/spinr-app/appcore/session"
)

// App is the assembled SDK. Subsystems are exposed directly; most hosts
// only need Session for bootstrap and api.Get against API for data reads.
type App struct {
	Config      config.Config
	Storage     kvstore.Store
	Cache       *cache.Store
	Tokens      *credential.TokenStore
	Credentials *credential.Resolver
	API         *api.Client
	Session     *session.Manager

	closers teardown
}

// Option adjusts App construction.
type Option func(*options)

type options struct {
	store     kvstore.Store
	federated oauth2.TokenSource
}

// WithStore substitutes the configured storage backend. The caller keeps
// ownership: Close will not close an injected store.
func WithStore(store kvstore.Store) Option {
	return func(o *options) { o.store = store }
}

// WithFederatedSource supplies a platform token source (for example a
// social sign-in integration). When it yields tokens they take precedence
// over the stored bearer token.
func WithFederatedSource(source oauth2.TokenSource) Option {
	return func(o *options) { o.federated = source }
}

// Load reads configuration from the environment and assembles the SDK.
func Load(ctx context.Context, opts ...Option) (*App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("configuration load failed: %w", err)
	}
	return New(ctx, cfg, opts...)
}

// New assembles the SDK from cfg. The dependency graph is built exactly
// once: storage backs the cache and the token store, the credential
// resolver feeds the API client, and the session manager sits on top.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg}

	store := o.store
	if store == nil {
		configured, err := kvstore.NewFromConfig(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("storage configuration failed: %w", err)
		}
		store = configured
		app.closers.add("storage", store.Close)
	}
	app.Storage = store

	defaultTTL := time.Duration(cfg.Cache.DefaultTTLMinutes) * time.Minute
	profileTTL := time.Duration(cfg.Bootstrap.ProfileTTLMinutes) * time.Minute
	app.Cache = cache.NewStore(store, defaultTTL, cfg.Cache.MemoryMaxEntries)
	policy := cache.NewPolicy(profileTTL, defaultTTL)

	app.Tokens = credential.NewTokenStore(store)
	var resolverOpts []credential.ResolverOption
	if o.federated != nil {
		resolverOpts = append(resolverOpts, credential.WithFederatedSource(o.federated))
	}
	app.Credentials = credential.NewResolver(app.Tokens, resolverOpts...)

	app.API = api.NewClient(cfg.API, app.Cache, policy, app.Credentials)
	app.closers.add("api client", app.API.Close)

	app.Session = session.NewManager(app.API, app.Cache, app.Credentials, app.Tokens, cfg.Bootstrap)

	return app, nil
}

// Close releases everything the App owns, most recently acquired first.
func (a *App) Close() error {
	return a.closers.run()
}
