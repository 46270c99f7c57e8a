package main

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/blueberrycongee/thunderchat"
	"github.com/blueberrycongee/thunderchat/internal/api"
	"github.com/blueberrycongee/thunderchat/internal/config"
	"github.com/blueberrycongee/thunderchat/internal/metrics"
)

// chainDiff describes how the provider chain moved between two clients.
type chainDiff struct {
	Added     []string
	Removed   []string
	Reordered bool
}

func (d chainDiff) changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || d.Reordered
}

// diffChain compares provider names in priority order. Reordered is set when
// the providers present in both chains appear in a different relative order.
func diffChain(prev, next []string) chainDiff {
	var d chainDiff
	var keptPrev, keptNext []string
	for _, name := range prev {
		if slices.Contains(next, name) {
			keptPrev = append(keptPrev, name)
		} else {
			d.Removed = append(d.Removed, name)
		}
	}
	for _, name := range next {
		if slices.Contains(prev, name) {
			keptNext = append(keptNext, name)
		} else {
			d.Added = append(d.Added, name)
		}
	}
	d.Reordered = !slices.Equal(keptPrev, keptNext)
	return d
}

// clientReloader rebuilds the chat client on config change and swaps it in.
// Reloads are serialized; a change that arrives mid-build is dropped and the
// file watcher will deliver the next one.
type clientReloader struct {
	logger  *slog.Logger
	swapper *api.ClientSwapper
	build   func(*config.Config) (*thunderchat.Client, error)

	mu    sync.Mutex
	busy  bool
	chain []string
}

func newClientReloader(logger *slog.Logger, swapper *api.ClientSwapper, build func(*config.Config) (*thunderchat.Client, error)) *clientReloader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &clientReloader{
		logger:  logger,
		swapper: swapper,
		build:   build,
	}
	if cur := swapper.Current(); cur != nil {
		r.chain = cur.Providers()
	}
	return r
}

func (r *clientReloader) Reload(cfg *config.Config) {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		metrics.RecordClientReload("skipped")
		r.logger.Warn("client reload already in progress")
		return
	}
	r.busy = true
	prev := r.chain
	r.mu.Unlock()

	next, err := r.build(cfg)
	if err == nil && next == nil {
		err = errNilClient
	}

	r.mu.Lock()
	r.busy = false
	if err == nil {
		r.chain = next.Providers()
	}
	r.mu.Unlock()

	if err != nil {
		metrics.RecordClientReload("failed")
		r.logger.Error("failed to rebuild chat client, keeping current", "error", err)
		return
	}

	r.swapper.Swap(next)
	metrics.RecordClientReload("swapped")

	diff := diffChain(prev, next.Providers())
	attrs := []any{
		"providers", next.Providers(),
		"turn_deadline", cfg.Chat.TurnDeadline,
	}
	if diff.changed() {
		attrs = append(attrs,
			"added", diff.Added,
			"removed", diff.Removed,
			"reordered", diff.Reordered,
		)
	}
	r.logger.Info("chat client reloaded", attrs...)
}
