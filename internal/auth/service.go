package auth

import (
	"context"
	"fmt"
	"net/mail"

	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
)

// MaxPasswordLength is bcrypt's input limit in bytes.
const MaxPasswordLength = 72

// Session is returned by signup and login.
type Session struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// Service implements account signup and login.
type Service struct {
	users      UserStore
	tokens     *TokenIssuer
	bcryptCost int
}

// NewService creates a Service. A bcryptCost of zero uses the default.
func NewService(users UserStore, tokens *TokenIssuer, bcryptCost int) *Service {
	return &Service{users: users, tokens: tokens, bcryptCost: bcryptCost}
}

// Signup registers a new account and returns a session for it.
func (s *Service) Signup(ctx context.Context, email, password string) (*Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user, err := s.users.CreateUser(ctx, email, hash)
	if err != nil {
		return nil, err
	}
	return s.session(user)
}

// Login checks credentials and returns a fresh session. Unknown e-mails and
// wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *Service) session(user *User) (*Session, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Email: user.Email}, nil
}

func validateCredentials(email, password string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return "", llmerrors.NewValidationError("credentials", "email and password are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", llmerrors.NewValidationError("email", "is not a valid address")
	}
	if len(password) > MaxPasswordLength {
		return "", llmerrors.NewValidationError("password", "must be at most %d bytes", MaxPasswordLength)
	}
	return email, nil
}
