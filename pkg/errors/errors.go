// Package errors defines the error taxonomy shared by provider clients, the
// fallback chain and the chat orchestrator.
// Provider-specific failures are mapped to a closed set of FailureKinds so
// that downstream logic never inspects provider-specific fields.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// FailureKind classifies a failed provider attempt.
type FailureKind int

const (
	KindUnknown FailureKind = iota
	KindTimeout
	KindRateLimited
	KindServerError
	KindAuthError
	KindBadResponse
	KindNetworkError
	KindNotConfigured
)

var kindNames = map[FailureKind]string{
	KindUnknown:       "unknown",
	KindTimeout:       "timeout",
	KindRateLimited:   "rate_limited",
	KindServerError:   "server_error",
	KindAuthError:     "auth_error",
	KindBadResponse:   "bad_response",
	KindNetworkError:  "network_error",
	KindNotConfigured: "not_configured",
}

// String returns the snake_case name used in logs and metric labels.
func (k FailureKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ProviderError represents a classified failure from a single provider call.
// Status is only meaningful for KindServerError and carries the upstream
// HTTP status code.
type ProviderError struct {
	Kind      FailureKind `json:"kind"`
	Status    int         `json:"status,omitempty"`
	Message   string      `json:"message"`
	Provider  string      `json:"provider"`
	Model     string      `json:"model,omitempty"`
	Retryable bool        `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("[%s] %s (provider=%s, model=%s, status=%d)",
			e.Kind, e.Message, e.Provider, e.Model, e.Status)
	}
	return fmt.Sprintf("[%s] %s (provider=%s, model=%s)",
		e.Kind, e.Message, e.Provider, e.Model)
}

// NewTimeoutError creates a timeout failure. Timeouts get a small retry budget.
func NewTimeoutError(provider, model, message string) *ProviderError {
	return &ProviderError{
		Kind:      KindTimeout,
		Message:   message,
		Provider:  provider,
		Model:     model,
		Retryable: true,
	}
}

// NewRateLimitError creates a rate limit failure (429).
func NewRateLimitError(provider, model, message string) *ProviderError {
	return &ProviderError{
		Kind:      KindRateLimited,
		Status:    http.StatusTooManyRequests,
		Message:   message,
		Provider:  provider,
		Model:     model,
		Retryable: true,
	}
}

// NewServerError creates an upstream 5xx failure.
func NewServerError(provider, model string, status int, message string) *ProviderError {
	return &ProviderError{
		Kind:      KindServerError,
		Status:    status,
		Message:   message,
		Provider:  provider,
		Model:     model,
		Retryable: true,
	}
}

// NewAuthError creates an authentication failure (401/403).
func NewAuthError(provider, model string, status int, message string) *ProviderError {
	return &ProviderError{
		Kind:     KindAuthError,
		Status:   status,
		Message:  message,
		Provider: provider,
		Model:    model,
	}
}

// NewBadResponseError creates a failure for unusable 2xx bodies or
// unexpected non-2xx statuses.
func NewBadResponseError(provider, model, message string) *ProviderError {
	return &ProviderError{
		Kind:     KindBadResponse,
		Message:  message,
		Provider: provider,
		Model:    model,
	}
}

// NewNetworkError creates a DNS or connection failure.
func NewNetworkError(provider, model, message string) *ProviderError {
	return &ProviderError{
		Kind:     KindNetworkError,
		Message:  message,
		Provider: provider,
		Model:    model,
	}
}

// NewNotConfiguredError is returned without any network I/O when a
// provider lacks the credentials or endpoint it needs.
func NewNotConfiguredError(provider, model, message string) *ProviderError {
	return &ProviderError{
		Kind:     KindNotConfigured,
		Message:  message,
		Provider: provider,
		Model:    model,
	}
}

// KindOf extracts the FailureKind from err, or KindUnknown if err is not a
// *ProviderError.
func KindOf(err error) FailureKind {
	var pe *ProviderError
	if stderrors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// ValidationError is a caller error detected before any provider is called.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return stderrors.As(err, &ve)
}

// PersistenceError wraps a thread store failure. It is logged by the
// orchestrator and never surfaced to the end user.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrExhausted is the sentinel wrapped by *ExhaustedError.
var ErrExhausted = stderrors.New("provider chain exhausted")

// ErrNotFound is returned by stores when a record is absent for its owner.
var ErrNotFound = stderrors.New("not found")

// Attempt records a single provider call made while walking the chain.
type Attempt struct {
	Provider string
	Model    string
	Number   int
	Kind     FailureKind
	Message  string
}

// ExhaustedError signals that every chain entry failed or was skipped.
// Last is nil when the chain had no entries at all.
type ExhaustedError struct {
	Last     *ProviderError
	Attempts []Attempt
	Aborted  bool
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString(ErrExhausted.Error())
	if e.Aborted {
		b.WriteString(" (deadline)")
	}
	fmt.Fprintf(&b, " after %d attempt(s)", len(e.Attempts))
	if e.Last != nil {
		b.WriteString(": ")
		b.WriteString(e.Last.Error())
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() error { return ErrExhausted }

// Diagnostic returns the message of the last provider failure, suitable for
// attaching as metadata to a fallback reply.
func (e *ExhaustedError) Diagnostic() string {
	if e.Last == nil {
		if e.Aborted {
			return "turn deadline exceeded"
		}
		return "no providers configured"
	}
	return fmt.Sprintf("%s: %s", e.Last.Provider, e.Last.Message)
}
