// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/thunderchat/internal/auth"
	"github.com/blueberrycongee/thunderchat/internal/secret/vault"
	"github.com/blueberrycongee/thunderchat/internal/store"
)

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Chat      ChatConfig       `yaml:"chat"`
	Providers []ProviderConfig `yaml:"providers"`
	Store     StoreConfig      `yaml:"store"`
	Auth      AuthConfig       `yaml:"auth"`
	CORS      CORSConfig       `yaml:"cors"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Tracing   TracingConfig    `yaml:"tracing"`
	Secrets   SecretsConfig    `yaml:"secrets"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port                int           `yaml:"port"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBodyBytes int64         `yaml:"max_request_body_bytes"`
}

// ChatConfig bounds a single chat turn.
type ChatConfig struct {
	TurnDeadline   time.Duration `yaml:"turn_deadline"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
}

// ProviderConfig defines one entry of the provider chain. Entries are tried
// in file order. APIKey may be a literal, env://NAME or vault://path#key.
type ProviderConfig struct {
	Name                string            `yaml:"name"`
	Type                string            `yaml:"type"`
	APIKey              string            `yaml:"api_key"`
	BaseURL             string            `yaml:"base_url"`
	Models              []string          `yaml:"models"`
	Timeout             time.Duration     `yaml:"timeout"`
	Headers             map[string]string `yaml:"headers"`
	AllowPrivateBaseURL bool              `yaml:"allow_private_base_url"`
	Retry               *RetryConfig      `yaml:"retry"`
}

// RetryConfig overrides a provider's retry policy. Zero fields keep the
// policy default.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	TimeoutAttempts int           `yaml:"timeout_attempts"`
	BaseDelay       time.Duration `yaml:"base_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	TimeoutDelay    time.Duration `yaml:"timeout_delay"`
	Jitter          float64       `yaml:"jitter"`
}

// StoreConfig selects the thread store backend.
type StoreConfig struct {
	Type     string               `yaml:"type"` // memory, postgres, redis
	Postgres store.PostgresConfig `yaml:"postgres"`
	Redis    store.RedisConfig    `yaml:"redis"`

	// PruneInterval runs orphan pruning in the server when positive.
	// Redis has no user table and is never pruned.
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// AuthConfig contains account and bearer token settings.
type AuthConfig struct {
	// UserStore is memory or postgres. Empty follows store.type, with redis
	// falling back to memory.
	UserStore      string          `yaml:"user_store"`
	JWTSecret      string          `yaml:"jwt_secret"`
	TokenTTL       time.Duration   `yaml:"token_ttl"`
	BcryptCost     int             `yaml:"bcrypt_cost"`
	VerifyCacheTTL time.Duration   `yaml:"verify_cache_ttl"`
	OIDC           auth.OIDCConfig `yaml:"oidc"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig defines per-owner chat rate limiting.
type RateLimitConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Backend              string `yaml:"backend"` // memory, redis
	auth.RateLimitConfig `yaml:",inline"`
}

// CORSConfig is the browser origin allowlist.
type CORSConfig struct {
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	Protocol    string  `yaml:"protocol"`     // grpc, http
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// SecretsConfig configures credential backends.
type SecretsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Vault    VaultConfig   `yaml:"vault"`
}

// VaultConfig enables vault:// references.
type VaultConfig struct {
	Enabled      bool `yaml:"enabled"`
	vault.Config `yaml:",inline"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8080,
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        90 * time.Second,
			IdleTimeout:         60 * time.Second,
			ShutdownTimeout:     30 * time.Second,
			MaxRequestBodyBytes: 64 * 1024,
		},
		Chat: ChatConfig{
			TurnDeadline:   30 * time.Second,
			PersistTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Type:     "memory",
			Postgres: store.DefaultPostgresConfig(),
			Redis:    store.DefaultRedisConfig(),
		},
		Auth: AuthConfig{
			TokenTTL:       auth.DefaultTokenTTL,
			VerifyCacheTTL: time.Minute,
			RateLimit: RateLimitConfig{
				Enabled: true,
				Backend: "memory",
				RateLimitConfig: auth.RateLimitConfig{
					RequestsPerMinute: 30,
					Burst:             5,
					CleanupTTL:        10 * time.Minute,
				},
			},
		},
		CORS: CORSConfig{
			MaxAge: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			ServiceName: "thunderchat",
			SampleRate:  1.0,
			Insecure:    true,
		},
		Secrets: SecretsConfig{
			CacheTTL: 5 * time.Minute,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over DefaultConfig and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

var knownProviderTypes = map[string]bool{
	"gemini":      true,
	"huggingface": true,
	"openrouter":  true,
	"relay":       true,
}

// Validate checks the configuration for errors. A provider without an API
// key is valid; it is skipped at call time.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Chat.TurnDeadline <= 0 {
		return fmt.Errorf("chat.turn_deadline must be positive")
	}
	if c.Chat.PersistTimeout < 0 {
		return fmt.Errorf("chat.persist_timeout cannot be negative")
	}

	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("provider[%d] %q: duplicate name", i, p.Name)
		}
		names[p.Name] = true
		if !knownProviderTypes[p.Type] {
			return fmt.Errorf("provider[%d] %q: unknown type %q", i, p.Name, p.Type)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("provider[%d] %q: timeout cannot be negative", i, p.Name)
		}
		if r := p.Retry; r != nil {
			if r.MaxAttempts < 0 || r.TimeoutAttempts < 0 || r.BaseDelay < 0 || r.MaxDelay < 0 || r.TimeoutDelay < 0 {
				return fmt.Errorf("provider[%d] %q: retry values cannot be negative", i, p.Name)
			}
			if r.Jitter < 0 || r.Jitter > 1 {
				return fmt.Errorf("provider[%d] %q: retry.jitter must be between 0 and 1", i, p.Name)
			}
		}
	}

	switch c.Store.Type {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("unknown store type: %q", c.Store.Type)
	}
	if c.Store.PruneInterval < 0 {
		return fmt.Errorf("store.prune_interval cannot be negative")
	}

	switch c.Auth.UserStore {
	case "", "memory", "postgres":
	default:
		return fmt.Errorf("unknown auth.user_store: %q", c.Auth.UserStore)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl cannot be negative")
	}
	if c.Auth.RateLimit.Enabled {
		switch c.Auth.RateLimit.Backend {
		case "memory", "redis":
		default:
			return fmt.Errorf("unknown auth.rate_limit.backend: %q", c.Auth.RateLimit.Backend)
		}
		if c.Auth.RateLimit.RequestsPerMinute < 0 || c.Auth.RateLimit.Burst < 0 {
			return fmt.Errorf("auth.rate_limit values cannot be negative")
		}
	}
	if c.Auth.OIDC.IssuerURL != "" && c.Auth.OIDC.ClientID == "" {
		return fmt.Errorf("auth.oidc.client_id is required when issuer_url is set")
	}

	if c.Tracing.Enabled && c.Tracing.Protocol != "grpc" && c.Tracing.Protocol != "http" {
		return fmt.Errorf("tracing.protocol must be grpc or http")
	}
	if c.Secrets.Vault.Enabled && c.Secrets.Vault.Address == "" {
		return fmt.Errorf("secrets.vault.address is required when vault is enabled")
	}
	return nil
}

// UserStoreType resolves the effective user store backend.
func (c *Config) UserStoreType() string {
	if c.Auth.UserStore != "" {
		return c.Auth.UserStore
	}
	if c.Store.Type == "postgres" {
		return "postgres"
	}
	return "memory"
}

// Warnings reports settings that are valid but probably unintended.
func (c *Config) Warnings() []string {
	var warnings []string
	if len(c.Providers) == 0 {
		warnings = append(warnings, "no providers configured; every reply will come from the local responder")
	}
	if c.Store.Type == "memory" {
		warnings = append(warnings, "memory store in use; threads are lost on restart")
	} else if c.UserStoreType() == "memory" {
		warnings = append(warnings, "accounts are kept in memory and lost on restart")
	}
	if c.Auth.RateLimit.Enabled && c.Auth.RateLimit.Backend == "redis" && c.Store.Type != "redis" {
		warnings = append(warnings, "redis rate limiting uses store.redis settings while threads are stored elsewhere")
	}
	if len(c.Auth.JWTSecret) < 32 {
		warnings = append(warnings, "auth.jwt_secret is shorter than 32 bytes")
	}
	return warnings
}
