package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/thunderchat"
	"github.com/blueberrycongee/thunderchat/internal/config"
	"github.com/blueberrycongee/thunderchat/internal/store"
)

// secretResolver resolves api_key references.
type secretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// clientBuilder turns a config snapshot into a ready thunderchat.Client.
// The store is shared across builds; provider configs are resolved anew.
type clientBuilder struct {
	threads store.ThreadStore
	secrets secretResolver
	logger  *slog.Logger
	tracer  trace.Tracer
}

const secretResolveTimeout = 10 * time.Second

func (b *clientBuilder) build(cfg *config.Config) (*thunderchat.Client, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	ctx, cancel := context.WithTimeout(context.Background(), secretResolveTimeout)
	defer cancel()

	opts := []thunderchat.Option{
		thunderchat.WithStore(b.threads),
		thunderchat.WithLogger(b.logger),
		thunderchat.WithTurnDeadline(cfg.Chat.TurnDeadline),
		thunderchat.WithPersistTimeout(cfg.Chat.PersistTimeout),
	}
	if b.tracer != nil {
		opts = append(opts, thunderchat.WithTracer(b.tracer))
	}

	for _, pc := range cfg.Providers {
		key, err := b.secrets.Resolve(ctx, pc.APIKey)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		if key == "" && pc.Type != "relay" {
			b.logger.Warn("provider has no credential and will be skipped", "provider", pc.Name)
		}
		opts = append(opts, thunderchat.WithProvider(providerConfig(pc, key)))
	}

	return thunderchat.New(opts...)
}

func providerConfig(pc config.ProviderConfig, apiKey string) thunderchat.ProviderConfig {
	out := thunderchat.ProviderConfig{
		Name:                pc.Name,
		Type:                pc.Type,
		APIKey:              apiKey,
		BaseURL:             pc.BaseURL,
		Models:              pc.Models,
		Timeout:             pc.Timeout,
		Headers:             pc.Headers,
		AllowPrivateBaseURL: pc.AllowPrivateBaseURL,
	}
	if pc.Retry != nil {
		policy := mergeRetry(thunderchat.DefaultRetryPolicy(pc.Type), *pc.Retry)
		out.Retry = &policy
	}
	return out
}

// mergeRetry overlays the non-zero fields of r on base.
func mergeRetry(base thunderchat.RetryPolicy, r config.RetryConfig) thunderchat.RetryPolicy {
	if r.MaxAttempts > 0 {
		base.MaxAttempts = r.MaxAttempts
	}
	if r.TimeoutAttempts > 0 {
		base.TimeoutAttempts = r.TimeoutAttempts
	}
	if r.BaseDelay > 0 {
		base.BaseDelay = r.BaseDelay
	}
	if r.MaxDelay > 0 {
		base.MaxDelay = r.MaxDelay
	}
	if r.TimeoutDelay > 0 {
		base.TimeoutDelay = r.TimeoutDelay
	}
	if r.Jitter > 0 {
		base.Jitter = r.Jitter
	}
	return base
}
