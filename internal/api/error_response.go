package api //nolint:revive // package name is intentional

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/thunderchat/internal/auth"
	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges operations that return no resource.
type SuccessResponse struct {
	Success string `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeFailure maps err onto a status code. Messages of unexpected errors
// are logged and replaced by fallback so internals never leak.
func writeFailure(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var ve *llmerrors.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, llmerrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "Thread not found")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered.")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials.")
	default:
		logger.Error(fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
