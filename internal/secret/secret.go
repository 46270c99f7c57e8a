// Package secret resolves provider credentials from configuration
// references. A reference is either a literal value or a URI whose scheme
// selects a backend: env://NAME or vault://path#key.
package secret

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned by backends when the referenced secret is absent.
// Resolvers treat it as an empty credential rather than a failure, so a
// provider with a missing key is still registered and reports itself as
// not configured.
var ErrNotFound = errors.New("secret not found")

// Provider is one secret backend.
type Provider interface {
	// Get returns the secret at path, the part of the reference after the
	// scheme.
	Get(ctx context.Context, path string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Resolver routes references to backends by scheme.
type Resolver struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewResolver creates a resolver with no backends registered.
func NewResolver() *Resolver {
	return &Resolver{providers: make(map[string]Provider)}
}

// Register installs a backend for scheme, replacing any previous one.
func (r *Resolver) Register(scheme string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[scheme] = p
}

// Scheme returns the scheme of ref, or "" for a literal.
func Scheme(ref string) string {
	scheme, _, ok := strings.Cut(ref, "://")
	if !ok {
		return ""
	}
	return scheme
}

// Resolve returns the credential ref points to. Literals are returned
// trimmed. A reference to a missing secret resolves to "".
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	scheme, path, ok := strings.Cut(ref, "://")
	if !ok {
		return ref, nil
	}

	r.mu.RLock()
	p, found := r.providers[scheme]
	r.mu.RUnlock()
	if !found {
		return "", fmt.Errorf("no secret provider registered for scheme: %s", scheme)
	}

	val, err := p.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s secret: %w", scheme, err)
	}
	return strings.TrimSpace(val), nil
}

// Close closes all registered backends.
func (r *Resolver) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for scheme, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", scheme, err))
		}
	}
	return errors.Join(errs...)
}
