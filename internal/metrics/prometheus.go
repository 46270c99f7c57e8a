// Package metrics provides Prometheus metrics for provider attempts, chat
// turns, persistence and the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "thunderchat"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 2.0, 3.0, 5.0, 7.5, 10.0,
	15.0, 20.0, 25.0, 30.0, 45.0, 60.0,
}

// Turn outcomes.
const (
	OutcomeProvider = "provider"
	OutcomeLocal    = "local"
	OutcomeDeadline = "deadline"
)

// =============================================================================
// Provider Metrics
// =============================================================================

var (
	// ProviderAttempts counts provider calls by outcome ("success" or a failure kind).
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Total provider attempts by outcome",
		},
		[]string{"provider", "model", "outcome"},
	)

	// ProviderAttemptLatency tracks single provider call latency.
	ProviderAttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_latency_seconds",
			Help:      "Provider attempt latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderRetries counts retries against the same provider and model.
	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Total retries against the same provider and model",
		},
		[]string{"provider", "kind"},
	)
)

// =============================================================================
// Turn Metrics
// =============================================================================

var (
	// TurnsTotal counts chat turns by how the reply was produced.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total chat turns by reply source",
		},
		[]string{"outcome"},
	)

	// TurnLatency tracks end-to-end turn latency.
	TurnLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "End-to-end chat turn latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"outcome"},
	)

	// PersistenceErrors counts thread store failures by operation.
	PersistenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Total thread store failures by operation",
		},
		[]string{"op"},
	)

	// ClientReloads counts chat client rebuilds triggered by config changes.
	ClientReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_reloads_total",
			Help:      "Total chat client reloads by outcome",
		},
		[]string{"outcome"},
	)

	// RateLimitedRequests counts chat requests rejected by the per-owner limiter.
	RateLimitedRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Total chat requests rejected by the per-owner rate limiter",
		},
	)
)

// RecordAttempt records the outcome and latency of one provider call.
func RecordAttempt(provider, model, outcome string, seconds float64) {
	model = sanitizeModelLabel(model)
	ProviderAttempts.WithLabelValues(provider, model, outcome).Inc()
	ProviderAttemptLatency.WithLabelValues(provider, model).Observe(seconds)
}

// RecordRetry records a retry against the same target.
func RecordRetry(provider, kind string) {
	ProviderRetries.WithLabelValues(provider, kind).Inc()
}

// RecordTurn records a completed turn.
func RecordTurn(outcome string, seconds float64) {
	TurnsTotal.WithLabelValues(outcome).Inc()
	TurnLatency.WithLabelValues(outcome).Observe(seconds)
}

// RecordPersistenceError records a failed store operation.
func RecordPersistenceError(op string) {
	PersistenceErrors.WithLabelValues(op).Inc()
}

// RecordClientReload records a config-driven client rebuild.
func RecordClientReload(outcome string) {
	ClientReloads.WithLabelValues(outcome).Inc()
}
