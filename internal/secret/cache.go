package secret

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider keeps resolved secrets for a TTL so config reloads do not
// hit the backend for every provider each time.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache
}

// NewCachedProvider wraps inner with a cache of the given TTL.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProvider{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (p *CachedProvider) Get(ctx context.Context, path string) (string, error) {
	if val, found := p.cache.Get(path); found {
		if s, ok := val.(string); ok {
			return s, nil
		}
	}

	val, err := p.inner.Get(ctx, path)
	if err != nil {
		return "", err
	}
	p.cache.SetDefault(path, val)
	return val, nil
}

// Flush drops every cached secret.
func (p *CachedProvider) Flush() {
	p.cache.Flush()
}

func (p *CachedProvider) Close() error {
	return p.inner.Close()
}
