package thunderchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/thunderchat/internal/local"
	"github.com/blueberrycongee/thunderchat/internal/metrics"
	"github.com/blueberrycongee/thunderchat/internal/observability"
	"github.com/blueberrycongee/thunderchat/internal/resilience"
	"github.com/blueberrycongee/thunderchat/internal/store"
	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
	"github.com/blueberrycongee/thunderchat/pkg/provider"
	"github.com/blueberrycongee/thunderchat/pkg/types"
	"github.com/blueberrycongee/thunderchat/providers"
	"github.com/blueberrycongee/thunderchat/providers/gemini"
)

// DefaultAttemptTimeout is the per-call timeout for providers that do not
// set one.
const DefaultAttemptTimeout = 20 * time.Second

// abandonGrace is how long a turn waits, after its deadline, for the chain
// to report the failure it was cancelled on.
const abandonGrace = 50 * time.Millisecond

// Client is the chat orchestrator. It validates a turn, loads or creates
// the thread, asks the provider chain for a reply, falls back to the local
// responder and persists the result.
//
// Client is safe for concurrent use by multiple goroutines. Turns on the
// same thread are not serialized: the last save wins.
type Client struct {
	chain          *resilience.Chain
	store          store.ThreadStore
	responder      Responder
	logger         *slog.Logger
	tracer         trace.Tracer
	now            func() time.Time
	turnDeadline   time.Duration
	persistTimeout time.Duration

	ownsStore  bool
	httpClient *http.Client // non-nil only when built here
}

// New creates a Client with the given options. Providers are resolved once
// here; nothing re-reads configuration per turn.
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	httpClient := cfg.HTTPClient
	ownsHTTP := httpClient == nil
	if ownsHTTP {
		// Per-attempt timeouts come from the request context.
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	entries := make([]resilience.Entry, 0, len(cfg.Providers)+len(cfg.ProviderInstances))
	for _, pcfg := range cfg.Providers {
		entry, err := buildEntry(pcfg, httpClient)
		if err != nil {
			return nil, fmt.Errorf("add provider %s: %w", pcfg.Name, err)
		}
		entries = append(entries, entry)
	}
	for _, inst := range cfg.ProviderInstances {
		if inst.Client == nil {
			return nil, fmt.Errorf("add provider instance %s: nil client", inst.Name)
		}
		timeout := inst.AttemptTimeout
		if timeout <= 0 {
			timeout = DefaultAttemptTimeout
		}
		entries = append(entries, resilience.Entry{
			Name:           inst.Name,
			Client:         inst.Client,
			Models:         inst.Models,
			Policy:         inst.Policy,
			AttemptTimeout: timeout,
		})
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(observability.TracerName)
	}

	chainOpts := []resilience.ChainOption{
		resilience.WithLogger(cfg.Logger),
		resilience.WithTracer(tracer),
	}
	if cfg.sleep != nil {
		chainOpts = append(chainOpts, resilience.WithSleep(cfg.sleep))
	}

	c := &Client{
		chain:          resilience.NewChain(entries, chainOpts...),
		store:          cfg.Store,
		responder:      cfg.Responder,
		logger:         cfg.Logger,
		tracer:         tracer,
		now:            cfg.Clock,
		turnDeadline:   cfg.TurnDeadline,
		persistTimeout: cfg.PersistTimeout,
	}
	if c.store == nil {
		c.store = store.NewMemoryStore()
		c.ownsStore = true
	}
	if ownsHTTP {
		c.httpClient = httpClient
	}
	if c.responder == nil {
		c.responder = local.NewResponder()
	}

	c.logger.Info("thunderchat client initialized",
		"providers", c.chain.Names(),
		"turn_deadline", c.turnDeadline,
	)
	return c, nil
}

func buildEntry(pcfg ProviderConfig, httpClient *http.Client) (resilience.Entry, error) {
	if pcfg.Type == "" {
		pcfg.Type = pcfg.Name
	}
	if pcfg.Name == "" {
		pcfg.Name = pcfg.Type
	}

	adapter, err := providers.Create(provider.Config{
		Name:                pcfg.Name,
		Type:                pcfg.Type,
		APIKey:              pcfg.APIKey,
		BaseURL:             pcfg.BaseURL,
		Models:              pcfg.Models,
		Timeout:             pcfg.Timeout,
		Headers:             pcfg.Headers,
		AllowPrivateBaseURL: pcfg.AllowPrivateBaseURL,
	})
	if err != nil {
		return resilience.Entry{}, err
	}

	policy := DefaultRetryPolicy(pcfg.Type)
	if pcfg.Retry != nil {
		policy = *pcfg.Retry
	}

	timeout := pcfg.Timeout
	switch {
	case pcfg.Type == "gemini":
		timeout = gemini.ClampTimeout(timeout)
	case timeout <= 0:
		timeout = DefaultAttemptTimeout
	}

	return resilience.Entry{
		Name:           adapter.Name(),
		Client:         provider.NewClient(adapter, provider.WithHTTPClient(httpClient)),
		Models:         adapter.Models(),
		Policy:         policy,
		AttemptTimeout: timeout,
	}, nil
}

// Providers returns the chain's provider names in priority order.
func (c *Client) Providers() []string {
	return c.chain.Names()
}

// Store returns the thread store backing the client.
func (c *Client) Store() ThreadStore {
	return c.store
}

// HandleTurn runs one chat turn for an authenticated owner. The only error
// it returns for a well-formed call is a *ValidationError; provider and
// persistence failures are absorbed and the reply is never empty.
func (c *Client) HandleTurn(ctx context.Context, ownerID, threadID, text string) (*TurnResult, error) {
	if err := validateTurn(ownerID, threadID, text); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := observability.StartTurnSpan(ctx, c.tracer, threadID)
	defer span.End()

	logger := observability.WithRequestID(ctx, c.logger).With(
		"owner_id", ownerID,
		"thread_id", threadID,
	)

	thread, persist := c.loadThread(ctx, logger, ownerID, threadID, text)
	thread.Append(types.RoleUser, text, c.now())

	result := &TurnResult{ThreadID: threadID}
	outcome := metrics.OutcomeProvider

	reply, err := c.getReply(ctx, text)
	if err == nil {
		result.Reply = reply.Text
		result.Provider = reply.Provider
		result.Model = reply.Model
	} else {
		result.Reply = c.responder.Respond(text)
		if result.Reply == "" {
			result.Reply = local.Apology
		}
		result.Fallback = true
		result.Diagnostic = diagnostic(err)

		outcome = metrics.OutcomeLocal
		var ee *llmerrors.ExhaustedError
		if errors.As(err, &ee) && ee.Aborted {
			outcome = metrics.OutcomeDeadline
		}
		logger.Warn("provider chain exhausted, using local responder",
			"outcome", outcome,
			"diagnostic", result.Diagnostic,
		)
	}
	span.SetAttributes(
		attribute.String("chat.outcome", outcome),
		attribute.String("chat.provider", result.Provider),
	)

	thread.Append(types.RoleAssistant, result.Reply, c.now())

	if persist {
		c.save(ctx, logger, thread)
	}

	elapsed := time.Since(start)
	metrics.RecordTurn(outcome, elapsed.Seconds())
	logger.Info("chat turn completed",
		"outcome", outcome,
		"provider", result.Provider,
		"model", result.Model,
		"latency", elapsed,
	)
	return result, nil
}

// loadThread returns the thread to append to and whether it should be
// saved afterwards. When the store cannot be read the turn continues on a
// transient thread that is never saved, so an existing history cannot be
// overwritten by a partial one.
func (c *Client) loadThread(ctx context.Context, logger *slog.Logger, ownerID, threadID, text string) (*types.Thread, bool) {
	thread, err := c.store.FindThread(ctx, ownerID, threadID)
	if err != nil {
		c.persistenceFailed(logger, "find", err)
		return types.NewThread(ownerID, threadID, text, c.now()), false
	}
	if thread != nil {
		return thread, true
	}

	thread, err = c.store.CreateThread(ctx, ownerID, threadID, text)
	if err != nil || thread == nil {
		if err != nil {
			c.persistenceFailed(logger, "create", err)
		}
		return types.NewThread(ownerID, threadID, text, c.now()), true
	}
	return thread, true
}

// getReply races the chain against the turn deadline. Once the deadline
// fires the chain's in-flight attempt is cancelled and its late result, if
// any, is used only for the diagnostic.
func (c *Client) getReply(ctx context.Context, text string) (*resilience.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.turnDeadline)
	defer cancel()

	type chainResult struct {
		reply *resilience.Reply
		err   error
	}
	done := make(chan chainResult, 1)
	go func() {
		reply, err := c.chain.GetReply(ctx, text)
		done <- chainResult{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		return res.reply, res.err
	case <-ctx.Done():
	}

	aborted := &llmerrors.ExhaustedError{Aborted: true}
	timer := time.NewTimer(abandonGrace)
	defer timer.Stop()
	select {
	case res := <-done:
		var ee *llmerrors.ExhaustedError
		if errors.As(res.err, &ee) {
			aborted.Last = ee.Last
			aborted.Attempts = ee.Attempts
		}
	case <-timer.C:
	}
	return nil, aborted
}

// save persists the thread even when the caller has gone away; the reply
// is already decided and a failed save never revokes it.
func (c *Client) save(ctx context.Context, logger *slog.Logger, thread *types.Thread) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout)
	defer cancel()

	if err := c.store.Save(ctx, thread); err != nil {
		c.persistenceFailed(logger, "save", err)
	}
}

func (c *Client) persistenceFailed(logger *slog.Logger, op string, err error) {
	metrics.RecordPersistenceError(op)
	logger.Error("thread persistence failed",
		"error", &llmerrors.PersistenceError{Op: op, Err: err},
	)
}

// ListThreads returns the owner's thread summaries, most recent first.
func (c *Client) ListThreads(ctx context.Context, ownerID string) ([]ThreadSummary, error) {
	if ownerID == "" {
		return nil, llmerrors.NewValidationError("ownerId", "is required")
	}
	list, err := c.store.ListThreads(ctx, ownerID)
	if err != nil {
		return nil, &llmerrors.PersistenceError{Op: "list", Err: err}
	}
	return list, nil
}

// GetThreadMessages returns the messages of an owned thread, or
// ErrNotFound when the owner has no such thread.
func (c *Client) GetThreadMessages(ctx context.Context, ownerID, threadID string) ([]Message, error) {
	if err := validateThreadRef(ownerID, threadID); err != nil {
		return nil, err
	}
	thread, err := c.store.FindThread(ctx, ownerID, threadID)
	if err != nil {
		return nil, &llmerrors.PersistenceError{Op: "find", Err: err}
	}
	if thread == nil {
		return nil, ErrNotFound
	}
	return thread.Messages, nil
}

// DeleteThread removes an owned thread entirely, returning ErrNotFound
// when it does not exist.
func (c *Client) DeleteThread(ctx context.Context, ownerID, threadID string) error {
	if err := validateThreadRef(ownerID, threadID); err != nil {
		return err
	}
	deleted, err := c.store.DeleteThread(ctx, ownerID, threadID)
	if err != nil {
		return &llmerrors.PersistenceError{Op: "delete", Err: err}
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Close releases what the client created itself. A store supplied with
// WithStore is left open so it can outlive a client swap.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}

func validateTurn(ownerID, threadID, text string) error {
	if err := validateThreadRef(ownerID, threadID); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return llmerrors.NewValidationError("message", "is required")
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return llmerrors.NewValidationError("message", "is %d characters, maximum is %d", n, MaxMessageLength)
	}
	return nil
}

func validateThreadRef(ownerID, threadID string) error {
	if ownerID == "" {
		return llmerrors.NewValidationError("ownerId", "is required")
	}
	if strings.TrimSpace(threadID) == "" {
		return llmerrors.NewValidationError("threadId", "is required")
	}
	if n := utf8.RuneCountInString(threadID); n > MaxThreadIDLength {
		return llmerrors.NewValidationError("threadId", "is %d characters, maximum is %d", n, MaxThreadIDLength)
	}
	return nil
}

func diagnostic(err error) string {
	var ee *llmerrors.ExhaustedError
	if errors.As(err, &ee) {
		return ee.Diagnostic()
	}
	return err.Error()
}
