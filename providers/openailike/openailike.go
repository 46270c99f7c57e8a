// Package openailike provides a shared adapter for OpenAI-compatible
// chat completion endpoints.
package openailike

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
	"github.com/blueberrycongee/thunderchat/pkg/provider"
)

// Info describes an OpenAI-compatible provider.
type Info struct {
	// Name is the provider identifier (e.g., "openrouter")
	Name string

	// DefaultBaseURL is the default API endpoint
	DefaultBaseURL string

	// APIKeyHeader is the header name for API key authentication
	// Default: "Authorization" with "Bearer " prefix
	APIKeyHeader string

	// APIKeyPrefix is the prefix for the API key value
	APIKeyPrefix string

	// ChatEndpoint is the path for chat completions
	// Default: "/chat/completions"
	ChatEndpoint string

	// ExtraHeaders are additional headers to include in requests
	ExtraHeaders map[string]string

	// DefaultModels is used when the config lists no models
	DefaultModels []string
}

// Provider implements provider.Adapter for OpenAI-compatible APIs.
type Provider struct {
	info    Info
	name    string
	apiKey  string
	baseURL string
	models  []string
	headers map[string]string
}

// Option configures a Provider.
type Option func(*Provider)

func WithName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.name = name
		}
	}
}

func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = strings.TrimSpace(key) }
}

func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

func WithModels(models ...string) Option {
	return func(p *Provider) {
		if len(models) > 0 {
			p.models = append([]string(nil), models...)
		}
	}
}

func WithHeader(k, v string) Option {
	return func(p *Provider) { p.headers[k] = v }
}

// New creates a new OpenAI-like provider instance.
func New(info Info, opts ...Option) *Provider {
	p := &Provider{
		info:    info,
		name:    info.Name,
		baseURL: strings.TrimSuffix(info.DefaultBaseURL, "/"),
		models:  append([]string(nil), info.DefaultModels...),
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig creates a provider from a Config struct.
func NewFromConfig(info Info, cfg provider.Config) (provider.Adapter, error) {
	base, err := provider.ResolveBaseURL(cfg, info.DefaultBaseURL)
	if err != nil {
		return nil, err
	}
	p := New(info,
		WithName(cfg.Name),
		WithAPIKey(cfg.APIKey),
		WithBaseURL(base),
		WithModels(cfg.Models...),
	)
	for k, v := range cfg.Headers {
		p.headers[k] = v
	}
	return p, nil
}

func (p *Provider) Name() string     { return p.name }
func (p *Provider) Models() []string { return p.models }

func (p *Provider) Configured() (bool, string) {
	if p.apiKey == "" {
		return false, "missing API key"
	}
	if len(p.models) == 0 {
		return false, "no models configured"
	}
	return true, ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

// BuildRequest creates an HTTP request for the provider's API.
func (p *Provider) BuildRequest(ctx context.Context, model, text string) (*http.Request, error) {
	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: text}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := p.info.ChatEndpoint
	if endpoint == "" {
		endpoint = "/chat/completions"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	apiKeyHeader := p.info.APIKeyHeader
	if apiKeyHeader == "" {
		apiKeyHeader = "Authorization"
	}
	apiKeyPrefix := p.info.APIKeyPrefix
	if apiKeyPrefix == "" && apiKeyHeader == "Authorization" {
		apiKeyPrefix = "Bearer "
	}
	httpReq.Header.Set(apiKeyHeader, apiKeyPrefix+p.apiKey)

	for k, v := range p.info.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) Rules() []provider.Extractor {
	return []provider.Extractor{
		provider.Path("choices.0.message.content"),
		provider.Path("choices.0.text"),
	}
}

func (p *Provider) AcceptsPlainText() bool { return false }

func (p *Provider) MapError(model string, statusCode int, body []byte) *llmerrors.ProviderError {
	return provider.MapStatus(p.name, model, statusCode, body)
}
