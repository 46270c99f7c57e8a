// Package auth provides account signup and login, bearer token issuing and
// verification, and per-owner request rate limiting.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Errors for control flow decisions in the HTTP layer.
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingToken       = errors.New("missing token")
)

// User is a registered account. ID is the owner ID of the user's threads.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the verified owner of a request.
type Identity struct {
	OwnerID   string
	Email     string
	ExpiresAt time.Time
	// Source names the verifier that accepted the token.
	Source string
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser stores a new user and returns ErrEmailTaken when the
	// e-mail is already registered.
	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)

	// GetUserByEmail returns nil when no user has the e-mail.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUser returns nil when the ID is unknown.
	GetUser(ctx context.Context, id string) (*User, error)
}

// NormalizeEmail trims and lower-cases an address for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
