package main

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/thunderchat/internal/auth"
	"github.com/blueberrycongee/thunderchat/internal/config"
)

// authComponents is everything the HTTP layer needs for accounts, bearer
// tokens and rate limiting. Auth settings are read once at startup.
type authComponents struct {
	service  *auth.Service
	verifier auth.Verifier
	limiter  auth.RateLimiter
	close    func()
}

var newOIDCVerifier = func(ctx context.Context, cfg auth.OIDCConfig) (auth.Verifier, error) {
	return auth.NewOIDCVerifier(ctx, cfg)
}

func buildAuth(ctx context.Context, cfg *config.Config, users auth.UserStore, redis goredis.UniversalClient, logger *slog.Logger) (*authComponents, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	chain := auth.ChainVerifier{issuer}
	if cfg.Auth.OIDC.IssuerURL != "" {
		ov, err := newOIDCVerifier(ctx, cfg.Auth.OIDC)
		if err != nil {
			return nil, fmt.Errorf("init oidc verifier: %w", err)
		}
		chain = append(chain, ov)
		logger.Info("OIDC bearer tokens accepted", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	out := &authComponents{
		service:  auth.NewService(users, issuer, cfg.Auth.BcryptCost),
		verifier: chain,
		close:    func() {},
	}
	if cfg.Auth.VerifyCacheTTL > 0 {
		out.verifier = auth.NewCachedVerifier(chain, cfg.Auth.VerifyCacheTTL)
	}

	rl := cfg.Auth.RateLimit
	if !rl.Enabled {
		return out, nil
	}
	switch rl.Backend {
	case "redis":
		if redis == nil {
			return nil, fmt.Errorf("redis rate limiting requires a redis connection")
		}
		out.limiter = auth.NewRedisRateLimiter(redis, cfg.Store.Redis.Namespace, rl.RateLimitConfig)
	default:
		limiter := auth.NewOwnerRateLimiter(rl.RateLimitConfig)
		out.limiter = limiter
		out.close = limiter.Close
	}
	logger.Info("chat rate limiting enabled",
		"backend", rl.Backend,
		"requests_per_minute", rl.RequestsPerMinute,
		"burst", rl.Burst,
	)
	return out, nil
}
