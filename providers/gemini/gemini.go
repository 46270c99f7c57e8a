// Package gemini provides the Google Gemini generateContent adapter, the
// primary hosted-inference provider.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
	"github.com/blueberrycongee/thunderchat/pkg/provider"
)

const (
	ProviderName      = "gemini"
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"
	DefaultModel      = "gemini-2.5-flash-lite"

	// DefaultTimeout and MinTimeout bound the per-attempt timeout.
	DefaultTimeout = 25 * time.Second
	MinTimeout     = 5 * time.Second
)

type Provider struct {
	name       string
	apiKey     string
	baseURL    string
	apiVersion string
	models     []string
	headers    map[string]string
}

func New(opts ...Option) *Provider {
	p := &Provider{
		name:       ProviderName,
		baseURL:    DefaultBaseURL,
		apiVersion: DefaultAPIVersion,
		models:     []string{DefaultModel},
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	base, err := provider.ResolveBaseURL(cfg, DefaultBaseURL)
	if err != nil {
		return nil, err
	}
	opts := []Option{
		WithName(cfg.Name),
		WithAPIKey(cfg.APIKey),
		WithBaseURL(base),
		WithModels(cfg.Models...),
	}
	p := New(opts...)
	for k, v := range cfg.Headers {
		p.headers[k] = v
	}
	return p, nil
}

// ClampTimeout applies the provider default and floor to a configured timeout.
func ClampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	if d < MinTimeout {
		return MinTimeout
	}
	return d
}

func (p *Provider) Name() string     { return p.name }
func (p *Provider) Models() []string { return p.models }

func (p *Provider) Configured() (bool, string) {
	if strings.TrimSpace(p.apiKey) == "" {
		return false, "missing API key"
	}
	return true, ""
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

func (p *Provider) BuildRequest(ctx context.Context, model, text string) (*http.Request, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: text}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	base, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base_url: %w", err)
	}
	model = strings.TrimPrefix(model, "models/")
	prefix := base.Path + "/" + p.apiVersion + "/models/"
	base.Path = prefix + model + ":generateContent"
	base.RawPath = prefix + url.PathEscape(model) + ":generateContent"
	q := base.Query()
	q.Set("key", p.apiKey)
	base.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) Rules() []provider.Extractor {
	return []provider.Extractor{
		provider.JoinPath("candidates.0.content.parts.#.text"),
		provider.Path("text"),
		provider.Path("output"),
	}
}

func (p *Provider) AcceptsPlainText() bool { return false }

// MapError follows the default classification, except that Gemini reports a
// rejected API key as 400 with reason API_KEY_INVALID.
func (p *Provider) MapError(model string, statusCode int, body []byte) *llmerrors.ProviderError {
	if statusCode == http.StatusBadRequest {
		reason := gjson.GetBytes(body, "error.details.#.reason").String()
		if strings.Contains(reason, "API_KEY_INVALID") {
			return llmerrors.NewAuthError(p.name, model, statusCode, provider.ErrorMessage(statusCode, body))
		}
	}
	return provider.MapStatus(p.name, model, statusCode, body)
}
