// Package relay provides a best-effort adapter for generic HTTP chat relays.
// Relays differ wildly in response shape, so the adapter probes a broad
// list of fields and accepts plain-text bodies.
package relay

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

const ProviderName = "relay"

type Provider struct {
	name    string
	apiKey  string
	baseURL string
	models  []string
	headers map[string]string
}

// NewFromConfig creates a relay adapter. An empty BaseURL is allowed; the
// adapter then reports itself as not configured.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	p := &Provider{
		name:    ProviderName,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		models:  append([]string(nil), cfg.Models...),
		headers: make(map[string]string, len(cfg.Headers)),
	}
	if cfg.Name != "" {
		p.name = cfg.Name
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		base, err := provider.ResolveBaseURL(cfg, "")
		if err != nil {
			return nil, err
		}
		p.baseURL = base
	}
	if len(p.models) == 0 {
		p.models = []string{""}
	}
	for k, v := range cfg.Headers {
		p.headers[k] = v
	}
	return p, nil
}

func (p *Provider) Name() string     { return p.name }
func (p *Provider) Models() []string { return p.models }

func (p *Provider) Configured() (bool, string) {
	if p.baseURL == "" {
		return false, "missing base_url"
	}
	return true, ""
}

type relayRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

func (p *Provider) BuildRequest(ctx context.Context, model, text string) (*http.Request, error) {
	body, err := json.Marshal(relayRequest{Message: text, Model: model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/plain")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *Provider) Rules() []provider.Extractor {
	return []provider.Extractor{
		provider.Path("reply"),
		provider.Path("response"),
		provider.Path("message"),
		provider.Path("text"),
		provider.Path("answer"),
		provider.Path("output"),
		provider.Path("data.reply"),
		provider.Path("choices.0.message.content"),
	}
}

func (p *Provider) AcceptsPlainText() bool { return true }

func (p *Provider) MapError(model string, statusCode int, body []byte) *llmerrors.ProviderError {
	return provider.MapStatus(p.name, model, statusCode, body)
}
