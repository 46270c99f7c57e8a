// Package env reads secrets from environment variables.
package env

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blueberrycongee/thunderchat/internal/secret"
)

// Provider resolves env://NAME references.
type Provider struct {
	lookup func(string) (string, bool)
}

// New creates a provider over the process environment.
func New() *Provider {
	return &Provider{lookup: os.LookupEnv}
}

// Get returns the variable's value. Unset and blank variables are
// secret.ErrNotFound.
func (p *Provider) Get(_ context.Context, name string) (string, error) {
	val, ok := p.lookup(name)
	if !ok || strings.TrimSpace(val) == "" {
		return "", fmt.Errorf("environment variable %q: %w", name, secret.ErrNotFound)
	}
	return val, nil
}

func (p *Provider) Close() error { return nil }
