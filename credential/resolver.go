package credential

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Resolver picks the credential for outgoing requests. Precedence is fixed:
// a configured federated source always wins over the persisted bearer token,
// and resolution never degrades into probing; the wiring at startup decides
// which capabilities exist.
type Resolver struct {
	federated oauth2.TokenSource
	tokens    *TokenStore

	now func() time.Time
}

// ResolverOption configures the resolver.
type ResolverOption func(*Resolver)

// WithFederatedSource wires in the host app's identity provider session.
// Token() is called on every resolution; sources should wrap themselves in
// oauth2.ReuseTokenSource if minting is expensive.
func WithFederatedSource(source oauth2.TokenSource) ResolverOption {
	return func(r *Resolver) {
		r.federated = source
	}
}

func NewResolver(tokens *TokenStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the current credential. A federated mint failure falls
// through to the persisted bearer; a bearer whose own expiry has passed is
// cleared and reported as no credential, since the backend would only
// bounce it.
func (r *Resolver) Resolve(ctx context.Context) Credential {
	if r.federated != nil {
		token, err := r.federated.Token()
		if err == nil {
			return Credential{Kind: KindFederated, Token: token.AccessToken, Expiry: token.Expiry}
		}
		log.Warn().Err(err).Msg("federated token mint failed")
	}

	stored, found, err := r.tokens.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("loading persisted bearer token failed")
		return Credential{Kind: KindNone}
	}
	if !found || stored == "" {
		return Credential{Kind: KindNone}
	}

	expiry := bearerExpiry(stored)
	if !expiry.IsZero() && !r.now().Before(expiry) {
		log.Info().Time("expiry", expiry).Msg("persisted bearer token expired, clearing")
		if err := r.tokens.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("clearing expired bearer token failed")
		}
		return Credential{Kind: KindNone}
	}

	return Credential{Kind: KindBearer, Token: stored, Expiry: expiry}
}

// AuthHeader returns the Authorization header value for the current
// credential, or false when requests should go out bare.
func (r *Resolver) AuthHeader(ctx context.Context) (string, bool) {
	c := r.Resolve(ctx)
	if !c.Present() {
		return "", false
	}
	return "Bearer " + c.Token, true
}

// bearerExpiry reads the exp claim without verifying the signature; this is
// local hygiene only, the backend remains the authority on validity. Tokens
// that don't parse as JWTs are sent as-is.
func bearerExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
