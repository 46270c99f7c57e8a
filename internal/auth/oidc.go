package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCConfig contains configuration for OIDC bearer verification.
type OIDCConfig struct {
	IssuerURL string `yaml:"issuer_url"`
	ClientID  string `yaml:"client_id"`
}

// OIDCVerifier accepts ID tokens from an external identity provider. The
// owner ID is the issuer-scoped subject so it can never collide with a
// locally issued user ID.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	issuer   string
}

// NewOIDCVerifier discovers the provider's keys.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	return newOIDCVerifier(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg.IssuerURL), nil
}

func newOIDCVerifier(v *oidc.IDTokenVerifier, issuer string) *OIDCVerifier {
	return &OIDCVerifier{verifier: v, issuer: strings.TrimRight(issuer, "/")}
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if token.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Identity{
		OwnerID:   "oidc|" + v.issuer + "|" + token.Subject,
		Email:     NormalizeEmail(claims.Email),
		ExpiresAt: token.Expiry,
		Source:    "oidc",
	}, nil
}
