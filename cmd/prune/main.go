// Command prune deletes threads whose owner no longer has an account.
// It reads the same configuration file as the server and requires the
// postgres store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/blueberrycongee/thunderchat/internal/config"
	"github.com/blueberrycongee/thunderchat/internal/store"
)

var openPostgres = store.OpenPostgres

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	timeout := flag.Duration("timeout", 5*time.Minute, "maximum run time")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	n, err := run(ctx, *configPath, logger)
	if err != nil {
		logger.Error("prune failed", "error", err)
		os.Exit(1)
	}
	logger.Info("prune complete", "deleted", n)
}

func run(ctx context.Context, configPath string, logger *slog.Logger) (int64, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return 0, err
	}
	if cfg.Store.Type != "postgres" {
		return 0, errors.New("prune requires store.type postgres")
	}

	db, err := openPostgres(ctx, cfg.Store.Postgres)
	if err != nil {
		return 0, fmt.Errorf("open postgres: %w", err)
	}
	threads := store.NewPostgresStore(db)
	defer threads.Close()

	logger.Info("pruning orphan threads", "database", cfg.Store.Postgres.Database)
	return threads.DeleteOrphans(ctx)
}
