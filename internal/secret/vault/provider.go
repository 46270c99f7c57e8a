// Package vault reads provider credentials from HashiCorp Vault.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"

	"github.com/blueberrycongee/thunderchat/internal/secret"
)

// DefaultKey is read when a reference has no #key suffix.
const DefaultKey = "value"

// Config holds configuration for the Vault provider.
type Config struct {
	Address    string `yaml:"address"`
	AuthMethod string `yaml:"auth_method"` // token, approle, cert
	Token      string `yaml:"token"`
	RoleID     string `yaml:"role_id"`
	SecretID   string `yaml:"secret_id"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// Provider resolves vault://path#key references against KV v1 or v2.
type Provider struct {
	client *vault.Client
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New logs in to Vault and starts renewing the token when it is renewable.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	vConfig := vault.DefaultConfig()
	vConfig.Address = cfg.Address
	if cfg.ClientCert != "" || cfg.ClientKey != "" || cfg.CACert != "" {
		if err := vConfig.ConfigureTLS(&vault.TLSConfig{
			ClientCert: cfg.ClientCert,
			ClientKey:  cfg.ClientKey,
			CACert:     cfg.CACert,
		}); err != nil {
			return nil, fmt.Errorf("configure tls: %w", err)
		}
	}

	client, err := vault.NewClient(vConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}

	p := &Provider{client: client, logger: logger, stopCh: make(chan struct{})}

	var login *vault.Secret
	switch cfg.AuthMethod {
	case "token", "":
		if cfg.Token == "" {
			return nil, errors.New("vault token auth requires a token")
		}
		client.SetToken(cfg.Token)
		return p, nil
	case "approle":
		login, err = client.Logical().Write("auth/approle/login", map[string]any{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
	case "cert":
		login, err = client.Logical().Write("auth/cert/login", nil)
	default:
		return nil, fmt.Errorf("unknown vault auth method: %s", cfg.AuthMethod)
	}
	if err != nil {
		return nil, fmt.Errorf("vault login (%s): %w", cfg.AuthMethod, err)
	}
	if login == nil || login.Auth == nil {
		return nil, errors.New("vault login returned no auth info")
	}
	client.SetToken(login.Auth.ClientToken)

	if login.Auth.Renewable {
		p.wg.Add(1)
		go p.renew(login.Auth)
	}
	return p, nil
}

// SplitPath splits "path#key" into its parts, defaulting the key.
func SplitPath(ref string) (path, key string) {
	path, key, ok := strings.Cut(ref, "#")
	if !ok || key == "" {
		key = DefaultKey
	}
	return path, key
}

// Get reads one key of a secret. KV v2 responses are unwrapped from their
// "data" envelope.
func (p *Provider) Get(ctx context.Context, ref string) (string, error) {
	path, key := SplitPath(ref)

	s, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return "", fmt.Errorf("read vault secret %q: %w", path, err)
	}
	if s == nil || s.Data == nil {
		return "", fmt.Errorf("vault secret %q: %w", path, secret.ErrNotFound)
	}

	data := s.Data
	if nested, ok := data["data"].(map[string]any); ok {
		data = nested
	}
	val, ok := data[key]
	if !ok || val == nil {
		return "", fmt.Errorf("key %q in vault secret %q: %w", key, path, secret.ErrNotFound)
	}
	return fmt.Sprint(val), nil
}

// Close stops the token renewer.
func (p *Provider) Close() error {
	close(p.stopCh)
	p.wg.Wait()
	return nil
}

func (p *Provider) renew(auth *vault.SecretAuth) {
	defer p.wg.Done()

	watcher, err := p.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: &vault.Secret{Auth: auth},
	})
	if err != nil {
		p.logger.Error("vault lifetime watcher failed", "error", err)
		return
	}
	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case err := <-watcher.DoneCh():
			if err != nil {
				p.logger.Error("vault token renewal stopped", "error", err)
			}
			return
		case <-watcher.RenewCh():
			p.logger.Debug("vault token renewed")
		}
	}
}
