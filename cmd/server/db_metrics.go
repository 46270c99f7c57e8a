package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/blueberrycongee/thunderchat/internal/metrics"
)

const defaultPoolSampleInterval = 30 * time.Second

type dbStatsProvider interface {
	Stats() sql.DBStats
}

// poolSampler copies sql.DBStats into the pool gauges. It warns when callers
// had to wait for a connection since the previous sample.
type poolSampler struct {
	db       dbStatsProvider
	logger   *slog.Logger
	lastWait int64
}

func (s *poolSampler) sample() {
	st := s.db.Stats()
	metrics.UpdateDBPoolStats(st)

	if waited := st.WaitCount - s.lastWait; waited > 0 {
		s.logger.Warn("database pool saturated",
			"waits", waited,
			"in_use", st.InUse,
			"max_open", st.MaxOpenConnections,
			"wait_duration_total", st.WaitDuration,
		)
	}
	s.lastWait = st.WaitCount
}

func (s *poolSampler) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// startDBPoolMetrics samples db immediately and then every interval until
// ctx ends or the returned func is called.
func startDBPoolMetrics(ctx context.Context, db dbStatsProvider, logger *slog.Logger, interval time.Duration) context.CancelFunc {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultPoolSampleInterval
	}

	s := &poolSampler{db: db, logger: logger}
	s.lastWait = db.Stats().WaitCount
	s.sample()

	ctx, cancel := context.WithCancel(ctx)
	go s.run(ctx, interval)

	logger.Debug("db pool sampler started", "interval", interval.String())
	return cancel
}
