// Package provider defines the adapter contract for external LLM providers
// and the generic HTTP client that turns an adapter into a ProviderClient.
// Adapters only describe the wire shape of a provider: how to build a request,
// where the reply text lives in a response and how error statuses map onto
// the FailureKind taxonomy.
package provider

import (
	"context"
	"net/http"
	"time"

	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
)

// Adapter describes a single external provider's wire protocol.
// Implementations must be safe for concurrent use and must not read ambient
// state (environment, files) per call; everything comes from Config.
type Adapter interface {
	// Name returns the configured provider name (e.g. "gemini", "openrouter").
	Name() string

	// Models returns the ordered model list tried by the fallback chain.
	Models() []string

	// Configured returns a non-empty reason when the adapter lacks the
	// credentials or endpoint it needs. Send never touches the network in
	// that case.
	Configured() (ok bool, reason string)

	// BuildRequest builds the provider-specific HTTP request for one turn.
	BuildRequest(ctx context.Context, model, text string) (*http.Request, error)

	// Rules returns the ordered extraction rules for successful responses.
	Rules() []Extractor

	// AcceptsPlainText reports whether non-JSON 2xx bodies are valid replies.
	AcceptsPlainText() bool

	// MapError converts a non-2xx response into a classified failure.
	MapError(model string, statusCode int, body []byte) *llmerrors.ProviderError
}

// Config is the immutable provider configuration resolved once at startup.
type Config struct {
	Name                string
	Type                string
	APIKey              string
	BaseURL             string
	Models              []string
	Timeout             time.Duration
	Headers             map[string]string
	AllowPrivateBaseURL bool
}

// Clone returns a copy that shares no slices or maps with c.
func (c Config) Clone() Config {
	cp := c
	if c.Models != nil {
		cp.Models = append([]string(nil), c.Models...)
	}
	if c.Headers != nil {
		cp.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			cp.Headers[k] = v
		}
	}
	return cp
}

// Factory creates an adapter from configuration.
type Factory func(cfg Config) (Adapter, error)
