package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/blueberrycongee/thunderchat/internal/metrics"
)

// RateLimiter decides whether an owner may start another request.
type RateLimiter interface {
	Allow(ctx context.Context, ownerID string) (bool, error)
}

// RateLimitConfig configures per-owner limits.
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Burst             int           `yaml:"burst"`
	CleanupTTL        time.Duration `yaml:"cleanup_ttl"`
	// FailOpen allows requests when a distributed backend fails.
	FailOpen bool `yaml:"fail_open"`
}

// OwnerRateLimiter is an in-process token bucket per owner.
type OwnerRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	limit      rate.Limit
	burst      int
	cleanupTTL time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewOwnerRateLimiter creates a limiter and starts its cleanup loop. Call
// Close to stop the loop.
func NewOwnerRateLimiter(cfg RateLimitConfig) *OwnerRateLimiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 30
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	if cfg.CleanupTTL <= 0 {
		cfg.CleanupTTL = 10 * time.Minute
	}

	l := &OwnerRateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		limit:      rate.Limit(float64(cfg.RequestsPerMinute) / 60.0),
		burst:      cfg.Burst,
		cleanupTTL: cfg.CleanupTTL,
		stop:       make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *OwnerRateLimiter) Allow(_ context.Context, ownerID string) (bool, error) {
	return l.limiter(ownerID).Allow(), nil
}

func (l *OwnerRateLimiter) limiter(ownerID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastAccess[ownerID] = time.Now()
	if lim, ok := l.limiters[ownerID]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.limiters[ownerID] = lim
	return lim
}

// Len returns the number of tracked owners.
func (l *OwnerRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Close stops the cleanup loop.
func (l *OwnerRateLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *OwnerRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.cleanup(time.Now())
		}
	}
}

func (l *OwnerRateLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for owner, last := range l.lastAccess {
		if now.Sub(last) > l.cleanupTTL {
			delete(l.limiters, owner)
			delete(l.lastAccess, owner)
		}
	}
}

// fixedWindowScript increments the owner's counter for the current window
// and returns the new count. The key expires with its window.
const fixedWindowScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('TTL', KEYS[1]) == -1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return count
`

// RedisRateLimiter is a fixed one-minute window shared by every server
// instance.
type RedisRateLimiter struct {
	client    goredis.UniversalClient
	script    *goredis.Script
	namespace string
	limit     int64
	window    time.Duration
	now       func() time.Time
}

// NewRedisRateLimiter creates a distributed limiter.
func NewRedisRateLimiter(client goredis.UniversalClient, namespace string, cfg RateLimitConfig) *RedisRateLimiter {
	limit := int64(cfg.RequestsPerMinute)
	if limit <= 0 {
		limit = 30
	}
	return &RedisRateLimiter{
		client:    client,
		script:    goredis.NewScript(fixedWindowScript),
		namespace: namespace,
		limit:     limit,
		window:    time.Minute,
		now:       time.Now,
	}
}

func (l *RedisRateLimiter) key(ownerID string) string {
	windowStart := l.now().Unix() / int64(l.window.Seconds())
	return fmt.Sprintf("%s:ratelimit:{%s}:%d", l.namespace, ownerID, windowStart)
}

func (l *RedisRateLimiter) Allow(ctx context.Context, ownerID string) (bool, error) {
	val, err := l.script.Run(ctx, l.client, []string{l.key(ownerID)}, int64(l.window.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}

	var count int64
	switch v := val.(type) {
	case int64:
		count = v
	case string:
		count, _ = strconv.ParseInt(v, 10, 64)
	default:
		return false, fmt.Errorf("unexpected result type from redis script: %T", val)
	}
	return count <= l.limit, nil
}

// RateLimitMiddleware rejects requests over the owner's limit with 429.
// It must run after Middleware so the owner is known.
func RateLimitMiddleware(limiter RateLimiter, failOpen bool, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := OwnerID(r.Context())
			if owner == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), owner)
			if err != nil {
				logger.Warn("rate limiter check failed",
					"error", err,
					"owner_id", owner,
					"fail_open", failOpen,
				)
				allowed = failOpen
			}
			if !allowed {
				metrics.RateLimitedRequests.Inc()
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
