package thunderchat

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/blueberrycongee/thunderchat/internal/resilience"
)

const (
	// DefaultTurnDeadline bounds the whole provider chain for one turn.
	DefaultTurnDeadline = 30 * time.Second

	// DefaultPersistTimeout bounds the final save of a turn.
	DefaultPersistTimeout = 5 * time.Second

	// MaxMessageLength is the longest accepted user message, in characters.
	MaxMessageLength = 4000

	// MaxThreadIDLength is the longest accepted thread ID, in characters.
	MaxThreadIDLength = 200
)

// ProviderConfig configures one chain entry. Entries are tried in the
// order they are added.
type ProviderConfig struct {
	Name    string
	Type    string // gemini, huggingface, openrouter, relay
	APIKey  string
	BaseURL string
	Models  []string
	Timeout time.Duration
	Headers map[string]string

	// AllowPrivateBaseURL permits loopback and private network base URLs.
	AllowPrivateBaseURL bool

	// Retry overrides the type's default retry policy.
	Retry *RetryPolicy
}

// Responder produces the last-resort reply when the provider chain is
// exhausted. It must never return an empty string.
type Responder interface {
	Respond(text string) string
}

// ClientConfig holds all configuration for the Client.
type ClientConfig struct {
	Providers         []ProviderConfig
	ProviderInstances []providerInstance

	Store     ThreadStore
	Responder Responder

	TurnDeadline   time.Duration
	PersistTimeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Clock      func() time.Time

	// sleep replaces retry backoff in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// providerInstance holds a pre-built provider client with its models.
type providerInstance struct {
	Name           string
	Client         ProviderClient
	Models         []string
	Policy         RetryPolicy
	AttemptTimeout time.Duration
}

// Option is a function that configures the Client.
type Option func(*ClientConfig)

func defaultConfig() *ClientConfig {
	return &ClientConfig{
		TurnDeadline:   DefaultTurnDeadline,
		PersistTimeout: DefaultPersistTimeout,
		Logger:         slog.Default(),
		Clock:          func() time.Time { return time.Now().UTC() },
	}
}

// WithProvider appends a provider built from configuration by type.
//
// Example:
//
//	thunderchat.WithProvider(thunderchat.ProviderConfig{
//	    Name:    "relay",
//	    Type:    "relay",
//	    BaseURL: "https://relay.example.com/chat",
//	})
func WithProvider(cfg ProviderConfig) Option {
	return func(c *ClientConfig) {
		c.Providers = append(c.Providers, cfg)
	}
}

// WithProviderInstance appends a pre-built provider client. Instances are
// placed after configured providers, in the order they are added, and get
// DefaultAttemptTimeout per call.
func WithProviderInstance(name string, client ProviderClient, models []string, policy RetryPolicy) Option {
	return func(c *ClientConfig) {
		c.ProviderInstances = append(c.ProviderInstances, providerInstance{
			Name:   name,
			Client: client,
			Models: models,
			Policy: policy,
		})
	}
}

// WithStore sets the thread store. Defaults to an in-memory store.
func WithStore(s ThreadStore) Option {
	return func(c *ClientConfig) {
		c.Store = s
	}
}

// WithTurnDeadline sets the overall deadline raced against the chain.
func WithTurnDeadline(d time.Duration) Option {
	return func(c *ClientConfig) {
		if d > 0 {
			c.TurnDeadline = d
		}
	}
}

// WithPersistTimeout bounds the save at the end of each turn.
func WithPersistTimeout(d time.Duration) Option {
	return func(c *ClientConfig) {
		if d > 0 {
			c.PersistTimeout = d
		}
	}
}

// WithResponder replaces the local arithmetic responder.
func WithResponder(r Responder) Option {
	return func(c *ClientConfig) {
		c.Responder = r
	}
}

// WithHTTPClient sets the HTTP client shared by configured providers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *ClientConfig) {
		c.HTTPClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithTracer sets the tracer used for turn and attempt spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *ClientConfig) {
		c.Tracer = tracer
	}
}

// WithClock sets the clock used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *ClientConfig) {
		if now != nil {
			c.Clock = now
		}
	}
}

// DefaultRetryPolicy returns the retry policy used for a provider type when
// ProviderConfig.Retry is nil.
func DefaultRetryPolicy(providerType string) RetryPolicy {
	if providerType == "relay" {
		return resilience.BestEffortPolicy()
	}
	return resilience.DefaultPolicy()
}
