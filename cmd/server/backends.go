package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/thunderchat/internal/api"
	"github.com/blueberrycongee/thunderchat/internal/auth"
	"github.com/blueberrycongee/thunderchat/internal/config"
	"github.com/blueberrycongee/thunderchat/internal/store"
)

var (
	openPostgres   = store.OpenPostgres
	newRedisClient = store.NewRedisClient
)

// backends are the long-lived stores shared by every client generation.
// They are built once at startup; a config reload does not reopen them.
type backends struct {
	threads store.ThreadStore
	users   auth.UserStore
	db      *sql.DB
	redis   goredis.UniversalClient
	pingers map[string]api.Pinger

	closers []func() error
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func openBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	b := &backends{pingers: map[string]api.Pinger{}}
	if err := b.open(ctx, cfg, logger); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) open(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	userStore := cfg.UserStoreType()
	if cfg.Store.Type == "postgres" || userStore == "postgres" {
		db, err := openPostgres(ctx, cfg.Store.Postgres)
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		b.db = db
		b.closers = append(b.closers, db.Close)
		b.pingers["postgres"] = pingFunc(db.PingContext)
		logger.Info("connected to postgres",
			"host", cfg.Store.Postgres.Host,
			"port", cfg.Store.Postgres.Port,
			"database", cfg.Store.Postgres.Database,
		)
	}
	if cfg.Store.Type == "redis" || (cfg.Auth.RateLimit.Enabled && cfg.Auth.RateLimit.Backend == "redis") {
		client, err := newRedisClient(ctx, cfg.Store.Redis)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		b.redis = client
		b.closers = append(b.closers, client.Close)
		b.pingers["redis"] = pingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
		logger.Info("connected to redis", "addr", cfg.Store.Redis.Addr)
	}

	// Users first: orphan pruning joins threads against the users table.
	switch userStore {
	case "postgres":
		users := auth.NewPostgresUserStore(b.db)
		if err := users.Migrate(ctx); err != nil {
			return err
		}
		b.users = users
	default:
		b.users = auth.NewMemoryUserStore()
		logger.Info("using in-memory user store (for development only)")
	}

	switch cfg.Store.Type {
	case "postgres":
		threads := store.NewPostgresStore(b.db)
		if err := threads.Migrate(ctx); err != nil {
			return err
		}
		b.threads = threads
	case "redis":
		b.threads = store.NewRedisStore(b.redis, cfg.Store.Redis.Namespace)
	default:
		b.threads = store.NewMemoryStore()
		logger.Info("using in-memory thread store (for development only)")
	}
	logger.Info("thread store ready", "type", cfg.Store.Type, "user_store", userStore)
	return nil
}

// Close releases connections. Stores wrap the shared handles, so only the
// handles themselves are closed.
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
