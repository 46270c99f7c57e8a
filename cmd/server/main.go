// Package main is the entry point for the thunderchat server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueberrycongee/thunderchat"
	"github.com/blueberrycongee/thunderchat/internal/api"
	"github.com/blueberrycongee/thunderchat/internal/auth"
	"github.com/blueberrycongee/thunderchat/internal/config"
	"github.com/blueberrycongee/thunderchat/internal/observability"
)

var (
	errNilConfig = errors.New("config is required")
	errNilClient = errors.New("builder returned nil client")
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Bootstrap logger until the config is loaded.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfgManager, err := config.NewManager(configPath, logger)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer cfgManager.Close()
	cfg := cfgManager.Get()

	logger, err = newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting thunderchat", "version", thunderchat.Version, "config", configPath)
	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", "detail", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRate:  cfg.Tracing.SampleRate,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.db != nil {
		if stop := startDBPoolMetrics(ctx, b.db, logger, 0); stop != nil {
			defer stop()
		}
	}
	if stop := startPruneJob(ctx, newOrphanPruner(b.threads, b.users), cfg.Store.PruneInterval, logger); stop != nil {
		defer stop()
	}

	resolver, err := buildSecretResolver(cfg, logger)
	if err != nil {
		return err
	}
	defer resolver.Close()

	builder := &clientBuilder{
		threads: b.threads,
		secrets: resolver,
		logger:  logger,
		tracer:  tp.Tracer(),
	}
	client, err := builder.build(cfg)
	if err != nil {
		return fmt.Errorf("build chat client: %w", err)
	}
	swapper := api.NewClientSwapper(client)
	defer swapper.Close()

	reloader := newClientReloader(logger, swapper, builder.build)
	cfgManager.OnChange(reloader.Reload)
	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	authn, err := buildAuth(ctx, cfg, b.users, b.redis, logger)
	if err != nil {
		return err
	}
	defer authn.close()

	routes := api.Routes{
		Chat:        api.NewChatHandler(swapper, logger, cfg.Server.MaxRequestBodyBytes),
		Auth:        api.NewAuthHandler(authn.service, logger),
		Health:      api.NewHealthHandler(swapper, b.pingers),
		RequireAuth: auth.Middleware(authn.verifier, logger),
	}
	if authn.limiter != nil {
		routes.RateLimit = auth.RateLimitMiddleware(authn.limiter, cfg.Auth.RateLimit.FailOpen, logger)
	}
	if cfg.Metrics.Enabled {
		routes.Metrics = promhttp.Handler()
		routes.MetricsPath = cfg.Metrics.Path
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, routes)

	stack, err := buildMiddlewareStack(cfg)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack(mux),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port, "providers", client.Providers())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := observability.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     os.Stdout,
		JSONFormat: cfg.Format != "text",
	}, observability.NewRedactor()), nil
}
