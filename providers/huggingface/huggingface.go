// Package huggingface provides the Hugging Face Inference API adapter.
package huggingface

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
	"github.com/blueberrycongee/thunderchat/pkg/provider"
)

const (
	ProviderName   = "huggingface"
	DefaultBaseURL = "https://api-inference.huggingface.co"
	DefaultModel   = "mistralai/Mistral-7B-Instruct-v0.3"
)

type Provider struct {
	name    string
	apiKey  string
	baseURL string
	models  []string
	headers map[string]string
}

func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	base, err := provider.ResolveBaseURL(cfg, DefaultBaseURL)
	if err != nil {
		return nil, err
	}
	p := &Provider{
		name:    ProviderName,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: base,
		models:  []string{DefaultModel},
		headers: make(map[string]string, len(cfg.Headers)),
	}
	if cfg.Name != "" {
		p.name = cfg.Name
	}
	if len(cfg.Models) > 0 {
		p.models = append([]string(nil), cfg.Models...)
	}
	for k, v := range cfg.Headers {
		p.headers[k] = v
	}
	return p, nil
}

func (p *Provider) Name() string     { return p.name }
func (p *Provider) Models() []string { return p.models }

func (p *Provider) Configured() (bool, string) {
	if p.apiKey == "" {
		return false, "missing API token"
	}
	return true, ""
}

type inferenceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

func (p *Provider) BuildRequest(ctx context.Context, model, text string) (*http.Request, error) {
	body, err := json.Marshal(inferenceRequest{
		Inputs:     text,
		Parameters: map[string]any{"return_full_text": false},
		Options:    map[string]any{"wait_for_model": false},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	segments := strings.Split(model, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	endpoint := p.baseURL + "/models/" + strings.Join(segments, "/")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) Rules() []provider.Extractor {
	return []provider.Extractor{
		provider.Path("0.generated_text"),
		provider.Path("generated_text"),
		provider.Path("choices.0.message.content"),
	}
}

func (p *Provider) AcceptsPlainText() bool { return false }

// MapError treats 503 "model is loading" like any other server error so the
// retry policy backs off.
func (p *Provider) MapError(model string, statusCode int, body []byte) *llmerrors.ProviderError {
	return provider.MapStatus(p.name, model, statusCode, body)
}
