// Package resilience provides the retry policy and the ordered provider
// fallback chain used to produce a reply for a chat turn.
package resilience

import (
	"math/rand/v2"
	"time"

	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
)

// Policy decides whether a failed attempt is retried against the same
// provider and model. It holds no mutable state and is safe to share.
type Policy struct {
	// MaxAttempts is the total attempt budget per target, including the first.
	MaxAttempts int
	// TimeoutAttempts caps the attempt budget for timeouts.
	TimeoutAttempts int
	// BaseDelay is the first backoff for rate limits and server errors; it
	// doubles on each further attempt.
	BaseDelay time.Duration
	// MaxDelay caps exponential backoff.
	MaxDelay time.Duration
	// TimeoutDelay is the fixed pause before retrying a timeout.
	TimeoutDelay time.Duration
	// Jitter spreads backoff by up to +/- this fraction (0 disables it).
	Jitter float64
}

// Decision is the outcome of ShouldRetry.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// DefaultPolicy is used for rate-limited hosted providers.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		TimeoutAttempts: 2,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        8 * time.Second,
		TimeoutDelay:    250 * time.Millisecond,
	}
}

// BestEffortPolicy is used for relays: one retry at most, never on timeouts.
func BestEffortPolicy() Policy {
	return Policy{
		MaxAttempts:     2,
		TimeoutAttempts: 1,
		BaseDelay:       250 * time.Millisecond,
		MaxDelay:        time.Second,
		TimeoutDelay:    0,
	}
}

// WithDefaults fills zero fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.TimeoutAttempts <= 0 {
		p.TimeoutAttempts = def.TimeoutAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.TimeoutDelay < 0 {
		p.TimeoutDelay = 0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// ShouldRetry decides whether to retry after attempt (1-based) failed with
// kind, given a budget of maxAttempts for this target.
func (p Policy) ShouldRetry(kind llmerrors.FailureKind, attempt, maxAttempts int) Decision {
	if attempt >= maxAttempts {
		return Decision{}
	}

	switch kind {
	case llmerrors.KindRateLimited, llmerrors.KindServerError:
		return Decision{Retry: true, Delay: p.backoff(attempt)}
	case llmerrors.KindTimeout:
		if attempt >= min(maxAttempts, p.TimeoutAttempts) {
			return Decision{}
		}
		return Decision{Retry: true, Delay: p.TimeoutDelay}
	default:
		// AuthError, BadResponse, NetworkError and NotConfigured move on.
		return Decision{}
	}
}

func (p Policy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter > 0 && delay > 0 {
		spread := float64(delay) * p.Jitter
		delay = time.Duration(float64(delay) - spread + rand.Float64()*2*spread)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}
