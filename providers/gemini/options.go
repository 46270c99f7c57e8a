package gemini

import "strings"

type Option func(*Provider)

func WithName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.name = name
		}
	}
}
func WithAPIKey(key string) Option { return func(p *Provider) { p.apiKey = strings.TrimSpace(key) } }
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.baseURL = url
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
func WithAPIVersion(v string) Option {
	return func(p *Provider) {
		if v != "" {
			p.apiVersion = v
		}
	}
}
func WithHeader(k, v string) Option { return func(p *Provider) { p.headers[k] = v } }
