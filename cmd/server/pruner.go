package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blueberrycongee/thunderchat/internal/auth"
	"github.com/blueberrycongee/thunderchat/internal/store"
)

// orphanPruner deletes threads whose owner no longer has an account.
type orphanPruner func(ctx context.Context) (int64, error)

// newOrphanPruner returns nil when the thread and user stores cannot be
// joined (redis threads, or stores of different kinds).
func newOrphanPruner(threads store.ThreadStore, users auth.UserStore) orphanPruner {
	switch ts := threads.(type) {
	case *store.PostgresStore:
		if _, ok := users.(*auth.PostgresUserStore); ok {
			return ts.DeleteOrphans
		}
	case *store.MemoryStore:
		if us, ok := users.(*auth.MemoryUserStore); ok {
			return func(ctx context.Context) (int64, error) {
				return ts.DeleteOwnersExcept(ctx, us.UserIDs())
			}
		}
	}
	return nil
}

func startPruneJob(ctx context.Context, prune orphanPruner, interval time.Duration, logger *slog.Logger) func() {
	if prune == nil || interval <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	stopCh := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() { close(stopCh) })
	}

	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		n, err := prune(runCtx)
		if err != nil {
			logger.Error("orphan thread pruning failed", "error", err)
			return
		}
		if n > 0 {
			logger.Info("pruned orphan threads", "count", n)
		}
	}

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				run()
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			}
		}
	}()

	logger.Info("orphan pruning scheduled", "interval", interval.String())
	return stop
}
