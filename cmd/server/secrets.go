package main

import (
	"fmt"
	"log/slog"

	"github.com/blueberrycongee/thunderchat/internal/config"
	"github.com/blueberrycongee/thunderchat/internal/secret"
	"github.com/blueberrycongee/thunderchat/internal/secret/env"
	"github.com/blueberrycongee/thunderchat/internal/secret/vault"
)

var newVaultProvider = func(cfg vault.Config, logger *slog.Logger) (secret.Provider, error) {
	return vault.New(cfg, logger)
}

// buildSecretResolver registers env:// always and vault:// when enabled.
// Vault lookups are cached so a config reload does not hit vault once per
// provider.
func buildSecretResolver(cfg *config.Config, logger *slog.Logger) (*secret.Resolver, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	resolver := secret.NewResolver()
	resolver.Register("env", env.New())

	if cfg.Secrets.Vault.Enabled {
		p, err := newVaultProvider(cfg.Secrets.Vault.Config, logger)
		if err != nil {
			return nil, fmt.Errorf("init vault: %w", err)
		}
		resolver.Register("vault", secret.NewCachedProvider(p, cfg.Secrets.CacheTTL))
		logger.Info("vault secret provider enabled", "address", cfg.Secrets.Vault.Address)
	}
	return resolver, nil
}
