package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
)

// Verifier turns a bearer credential into an owner identity.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Identity, error)
}

// ChainVerifier tries each verifier in order and returns the first
// identity. Only ErrInvalidToken moves on to the next verifier; any other
// error (an unreachable issuer) is returned immediately.
type ChainVerifier []Verifier

func (c ChainVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	lastErr := ErrInvalidToken
	for _, v := range c {
		id, err := v.Verify(ctx, raw)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrInvalidToken) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// CachedVerifier remembers successful verifications for a short TTL, never
// past the token's own expiry. Failures are not cached.
type CachedVerifier struct {
	next  Verifier
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewCachedVerifier wraps next with a cache of the given TTL.
func NewCachedVerifier(next Verifier, ttl time.Duration) *CachedVerifier {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedVerifier{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (v *CachedVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	key := tokenKey(raw)
	if cached, ok := v.cache.Get(key); ok {
		id := cached.(*Identity)
		if id.ExpiresAt.IsZero() || v.now().Before(id.ExpiresAt) {
			cp := *id
			return &cp, nil
		}
		v.cache.Delete(key)
	}

	id, err := v.next.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	ttl := v.ttl
	if !id.ExpiresAt.IsZero() {
		if remaining := id.ExpiresAt.Sub(v.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		cp := *id
		v.cache.Set(key, &cp, ttl)
	}
	return id, nil
}

// Len returns the number of cached identities.
func (v *CachedVerifier) Len() int {
	return v.cache.ItemCount()
}

func tokenKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
