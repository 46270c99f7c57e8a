package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/thunderchat/internal/metrics"
	"github.com/blueberrycongee/thunderchat/internal/observability"
	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
)

// Sender is a single provider client. Implementations must be safe for
// concurrent use.
type Sender interface {
	Name() string
	Send(ctx context.Context, model, text string, timeout time.Duration) (string, error)
}

// Entry is one provider in the chain with its ordered model sub-fallbacks.
type Entry struct {
	Name           string
	Client         Sender
	Models         []string
	Policy         Policy
	AttemptTimeout time.Duration
}

func (e Entry) name() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Client.Name()
}

func (e Entry) models() []string {
	if len(e.Models) == 0 {
		return []string{""}
	}
	return e.Models
}

// Reply is the first successful provider result.
type Reply struct {
	Text     string
	Provider string
	Model    string
	Attempts []llmerrors.Attempt
}

// Chain walks its entries in priority order and returns the first
// successful reply. It holds no per-turn state and is safe for concurrent use.
type Chain struct {
	entries []Entry
	logger  *slog.Logger
	tracer  trace.Tracer
	sleep   func(ctx context.Context, d time.Duration) error
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the logger used for attempt logs.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for attempt spans.
func WithTracer(tracer trace.Tracer) ChainOption {
	return func(c *Chain) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ChainOption {
	return func(c *Chain) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewChain builds a chain over entries in priority order.
func NewChain(entries []Entry, opts ...ChainOption) *Chain {
	c := &Chain{
		entries: append([]Entry(nil), entries...),
		logger:  slog.Default(),
		tracer:  otel.Tracer(observability.TracerName),
		sleep:   sleepContext,
	}
	for i := range c.entries {
		c.entries[i].Policy = c.entries[i].Policy.WithDefaults()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len returns the number of entries.
func (c *Chain) Len() int { return len(c.entries) }

// Names returns the entry names in priority order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.name()
	}
	return names
}

// GetReply returns the first successful reply. Provider failures never
// escape individually: when every entry is exhausted or ctx ends, the error
// is an *errors.ExhaustedError carrying the last failure.
func (c *Chain) GetReply(ctx context.Context, text string) (*Reply, error) {
	var (
		attempts []llmerrors.Attempt
		last     *llmerrors.ProviderError
	)
	exhausted := func(aborted bool) error {
		return &llmerrors.ExhaustedError{Last: last, Attempts: attempts, Aborted: aborted}
	}

entries:
	for _, entry := range c.entries {
		name := entry.name()
		for _, model := range entry.models() {
			for attempt := 1; ; attempt++ {
				if ctx.Err() != nil {
					return nil, exhausted(true)
				}

				reply, err := c.attempt(ctx, entry, name, model, text, attempt)
				if err == nil {
					attempts = append(attempts, llmerrors.Attempt{Provider: name, Model: model, Number: attempt})
					return &Reply{Text: reply, Provider: name, Model: model, Attempts: attempts}, nil
				}

				pe := asProviderError(err, name, model)
				last = pe
				attempts = append(attempts, llmerrors.Attempt{
					Provider: name,
					Model:    model,
					Number:   attempt,
					Kind:     pe.Kind,
					Message:  pe.Message,
				})

				if ctx.Err() != nil {
					return nil, exhausted(true)
				}
				if pe.Kind == llmerrors.KindNotConfigured {
					c.logger.Debug("provider not configured, skipping", "provider", name, "reason", pe.Message)
					continue entries
				}

				decision := entry.Policy.ShouldRetry(pe.Kind, attempt, entry.Policy.MaxAttempts)
				if !decision.Retry {
					break
				}

				metrics.RecordRetry(name, pe.Kind.String())
				c.logger.Debug("retrying provider",
					"provider", name,
					"model", model,
					"attempt", attempt,
					"kind", pe.Kind.String(),
					"delay", decision.Delay,
				)
				if err := c.sleep(ctx, decision.Delay); err != nil {
					return nil, exhausted(true)
				}
			}
		}
	}

	return nil, exhausted(false)
}

func (c *Chain) attempt(ctx context.Context, entry Entry, name, model, text string, attempt int) (string, error) {
	ctx, span := observability.StartProviderSpan(ctx, c.tracer, observability.ProviderSpanAttributes{
		Provider: name,
		Model:    model,
		Attempt:  attempt,
	})
	defer span.End()

	start := time.Now()
	reply, err := entry.Client.Send(ctx, model, text, entry.AttemptTimeout)
	elapsed := time.Since(start)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = llmerrors.NewBadResponseError(name, model, "empty reply")
	}

	if err != nil {
		kind := llmerrors.KindOf(err)
		if kind != llmerrors.KindNotConfigured {
			metrics.RecordAttempt(name, model, kind.String(), elapsed.Seconds())
			c.logger.Warn("provider attempt failed",
				"provider", name,
				"model", model,
				"attempt", attempt,
				"kind", kind.String(),
				"latency", elapsed,
				"error", err,
			)
		}
		observability.RecordFailure(span, kind.String(), err)
		return "", err
	}

	metrics.RecordAttempt(name, model, "success", elapsed.Seconds())
	return reply, nil
}

// asProviderError coerces an arbitrary Sender error into the taxonomy.
// Unclassified errors are treated as network failures.
func asProviderError(err error, name, model string) *llmerrors.ProviderError {
	var pe *llmerrors.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llmerrors.NewTimeoutError(name, model, err.Error())
	}
	return llmerrors.NewNetworkError(name, model, err.Error())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
