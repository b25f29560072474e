package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/spinr-app/appcore/kvstore"
)

type failingTokenSource struct{}

func (failingTokenSource) Token() (*oauth2.Token, error) {
	return nil, errors.New("identity provider unreachable")
}

func signedBearer(t *testing.T, expiresAt time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func newTestResolver(t *testing.T, opts ...ResolverOption) (*Resolver, *TokenStore) {
	t.Helper()

	tokens := NewTokenStore(kvstore.NewMemory())
	return NewResolver(tokens, opts...), tokens
}

func TestResolve_NoCredential(t *testing.T) {
	ctx := context.Background()
	resolver, _ := newTestResolver(t)

	c := resolver.Resolve(ctx)
	assert.Equal(t, KindNone, c.Kind)
	assert.False(t, c.Present())

	header, ok := resolver.AuthHeader(ctx)
	assert.False(t, ok)
	assert.Empty(t, header)
}

func TestResolve_FederatedWinsOverBearer(t *testing.T) {
	ctx := context.Background()

	expiry := time.Now().Add(5 * time.Minute)
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "fed-token", Expiry: expiry})

	resolver, tokens := newTestResolver(t, WithFederatedSource(source))
	require.NoError(t, tokens.Save(ctx, signedBearer(t, time.Now().Add(time.Hour))))

	c := resolver.Resolve(ctx)
	assert.Equal(t, KindFederated, c.Kind)
	assert.Equal(t, "fed-token", c.Token)
	assert.True(t, c.Expiry.Equal(expiry))
}

func TestResolve_FederatedFailureFallsBackToBearer(t *testing.T) {
	ctx := context.Background()

	resolver, tokens := newTestResolver(t, WithFederatedSource(failingTokenSource{}))
	bearer := signedBearer(t, time.Now().Add(time.Hour))
	require.NoError(t, tokens.Save(ctx, bearer))

	c := resolver.Resolve(ctx)
	assert.Equal(t, KindBearer, c.Kind)
	assert.Equal(t, bearer, c.Token)
}

func TestResolve_StoredBearerWithExpiry(t *testing.T) {
	ctx := context.Background()
	resolver, tokens := newTestResolver(t)

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, tokens.Save(ctx, signedBearer(t, expiry)))

	c := resolver.Resolve(ctx)
	assert.Equal(t, KindBearer, c.Kind)
	assert.True(t, c.Expiry.Equal(expiry), "expiry should be read from the token's own claims")
}

func TestResolve_ExpiredBearerClearedAndNone(t *testing.T) {
	ctx := context.Background()
	resolver, tokens := newTestResolver(t)

	require.NoError(t, tokens.Save(ctx, signedBearer(t, time.Now().Add(-time.Minute))))

	c := resolver.Resolve(ctx)
	assert.Equal(t, KindNone, c.Kind)

	_, found, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found, "an expired token is cleared, not resent")
}

func TestResolve_OpaqueTokenSentAsIs(t *testing.T) {
	ctx := context.Background()
	resolver, tokens := newTestResolver(t)

	require.NoError(t, tokens.Save(ctx, "spinr_opaque_session_token"))

	c := resolver.Resolve(ctx)
	assert.Equal(t, KindBearer, c.Kind)
	assert.Equal(t, "spinr_opaque_session_token", c.Token)
	assert.True(t, c.Expiry.IsZero(), "tokens without readable claims carry no expiry")
}

func TestAuthHeader_Format(t *testing.T) {
	ctx := context.Background()
	resolver, tokens := newTestResolver(t)

	require.NoError(t, tokens.Save(ctx, "spinr_opaque_session_token"))

	header, ok := resolver.AuthHeader(ctx)
	require.True(t, ok)
	assert.Equal(t, "Bearer spinr_opaque_session_token", header)
}

func TestTokenStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenStore(kvstore.NewMemory())

	_, found, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tokens.Save(ctx, "tok-1"))

	token, found, err := tokens.Load(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "tok-1", token)

	require.NoError(t, tokens.Clear(ctx))

	_, found, err = tokens.Load(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	// Clearing again is fine.
	assert.NoError(t, tokens.Clear(ctx))
}

func TestTokenStore_RejectsEmptyToken(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenStore(kvstore.NewMemory())

	assert.Error(t, tokens.Save(ctx, ""))
}
