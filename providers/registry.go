// Package providers provides a unified registry of provider adapter
// factories so adapters can be created from configuration by type name.
package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/blueberrycongee/thunderchat/pkg/provider"
	"github.com/blueberrycongee/thunderchat/providers/gemini"
	"github.com/blueberrycongee/thunderchat/providers/huggingface"
	"github.com/blueberrycongee/thunderchat/providers/openrouter"
	"github.com/blueberrycongee/thunderchat/providers/relay"
)

var (
	registry     = make(map[string]provider.Factory)
	registryOnce sync.Once
	registryMu   sync.RWMutex
)

// Register registers a provider factory with the given type name.
func Register(providerType string, factory provider.Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[providerType] = factory
}

// Get returns the factory for the given provider type.
func Get(providerType string) (provider.Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[providerType]
	return f, ok
}

// Create creates an adapter from configuration.
func Create(cfg provider.Config) (provider.Adapter, error) {
	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s (available: %v)", cfg.Type, List())
	}
	return factory(cfg.Clone())
}

// List returns all registered provider type names in sorted order.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins registers all built-in provider factories.
// This is called automatically on first use.
func RegisterBuiltins() {
	registryOnce.Do(func() {
		Register(gemini.ProviderName, gemini.NewFromConfig)
		Register(huggingface.ProviderName, huggingface.NewFromConfig)
		Register(openrouter.ProviderName, openrouter.NewFromConfig)
		Register(relay.ProviderName, relay.NewFromConfig)
	})
}

func init() {
	RegisterBuiltins()
}
