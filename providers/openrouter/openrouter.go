// Package openrouter provides the OpenRouter adapter, the secondary provider
// whose model list is walked in order by the fallback chain.
// API Reference: https://openrouter.ai/docs
package openrouter

import (
	"github.com/blueberrycongee/thunderchat/pkg/provider"
	"github.com/blueberrycongee/thunderchat/providers/openailike"
)

const (
	// ProviderName is the identifier for this provider.
	ProviderName = "openrouter"

	// DefaultBaseURL is the default OpenRouter API endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
)

// DefaultModels are free-tier models tried in order when none are configured.
var DefaultModels = []string{
	"meta-llama/llama-3.3-70b-instruct:free",
	"mistralai/mistral-7b-instruct:free",
	"google/gemma-2-9b-it:free",
}

var providerInfo = openailike.Info{
	Name:           ProviderName,
	DefaultBaseURL: DefaultBaseURL,
	ExtraHeaders: map[string]string{
		"HTTP-Referer": "https://github.com/blueberrycongee/thunderchat",
		"X-Title":      "thunderchat",
	},
	DefaultModels: DefaultModels,
}

// New creates a new OpenRouter adapter with the given options.
func New(opts ...openailike.Option) *openailike.Provider {
	return openailike.New(providerInfo, opts...)
}

// NewFromConfig creates an adapter from a Config struct.
func NewFromConfig(cfg provider.Config) (provider.Adapter, error) {
	return openailike.NewFromConfig(providerInfo, cfg)
}
