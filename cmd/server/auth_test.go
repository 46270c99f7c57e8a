package main

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/thunderchat/internal/auth"
)

type stubVerifier struct{}

func (stubVerifier) Verify(context.Context, string) (*auth.Identity, error) {
	return &auth.Identity{OwnerID: "oidc|issuer|sub", Source: "oidc"}, nil
}

func TestBuildAuth_Defaults(t *testing.T) {
	cfg := testConfig()

	authn, err := buildAuth(context.Background(), cfg, auth.NewMemoryUserStore(), nil, discardLogger())
	require.NoError(t, err)
	defer authn.close()

	require.NotNil(t, authn.service)
	assert.IsType(t, &auth.CachedVerifier{}, authn.verifier)
	assert.IsType(t, &auth.OwnerRateLimiter{}, authn.limiter)

	session, err := authn.service.Signup(context.Background(), "new@example.com", "password1")
	require.NoError(t, err)
	id, err := authn.verifier.Verify(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", id.Email)
}

func TestBuildAuth_RedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	cfg.Auth.RateLimit.Backend = "redis"
	cfg.Auth.VerifyCacheTTL = 0

	authn, err := buildAuth(context.Background(), cfg, auth.NewMemoryUserStore(), client, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &auth.RedisRateLimiter{}, authn.limiter)
	assert.IsType(t, auth.ChainVerifier{}, authn.verifier)

	_, err = buildAuth(context.Background(), cfg, auth.NewMemoryUserStore(), nil, discardLogger())
	require.ErrorContains(t, err, "requires a redis connection")
}

func TestBuildAuth_OIDC(t *testing.T) {
	prev := newOIDCVerifier
	t.Cleanup(func() { newOIDCVerifier = prev })

	cfg := testConfig()
	cfg.Auth.OIDC = auth.OIDCConfig{IssuerURL: "https://issuer.example.com", ClientID: "chat"}
	cfg.Auth.RateLimit.Enabled = false
	cfg.Auth.VerifyCacheTTL = 0

	newOIDCVerifier = func(context.Context, auth.OIDCConfig) (auth.Verifier, error) {
		return stubVerifier{}, nil
	}
	authn, err := buildAuth(context.Background(), cfg, auth.NewMemoryUserStore(), nil, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, authn.limiter)

	// Not a local JWT, so the chain falls through to the OIDC verifier.
	id, err := authn.verifier.Verify(context.Background(), "header.payload.signature")
	require.NoError(t, err)
	assert.Equal(t, "oidc|issuer|sub", id.OwnerID)

	newOIDCVerifier = func(context.Context, auth.OIDCConfig) (auth.Verifier, error) {
		return nil, errors.New("discovery failed")
	}
	_, err = buildAuth(context.Background(), cfg, auth.NewMemoryUserStore(), nil, discardLogger())
	require.ErrorContains(t, err, "discovery failed")
}

func TestBuildAuth_RequiresSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = ""
	_, err := buildAuth(context.Background(), cfg, auth.NewMemoryUserStore(), nil, discardLogger())
	require.Error(t, err)
}
