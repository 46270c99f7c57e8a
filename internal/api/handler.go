// Package api provides the HTTP handlers for the chat backend. Handlers are
// thin: they decode the request, call thunderchat.Client or auth.Service,
// and map errors onto status codes.
package api //nolint:revive // package name is intentional

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/thunderchat/internal/auth"
	"github.com/blueberrycongee/thunderchat/internal/httputil"
	"github.com/blueberrycongee/thunderchat/internal/observability"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ThreadID string `json:"threadId"`
	Message  string `json:"message"`
}

// CredentialsRequest is the body of the signup and login endpoints.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChatHandler serves the authenticated thread and chat endpoints.
type ChatHandler struct {
	clients     *ClientSwapper
	logger      *slog.Logger
	maxBodySize int64
}

// NewChatHandler creates a ChatHandler. A maxBodySize of zero uses
// httputil.DefaultMaxRequestBodyBytes.
func NewChatHandler(clients *ClientSwapper, logger *slog.Logger, maxBodySize int64) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBodySize <= 0 {
		maxBodySize = httputil.DefaultMaxRequestBodyBytes
	}
	return &ChatHandler{clients: clients, logger: logger, maxBodySize: maxBodySize}
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, h.maxBodySize, &req) {
		return
	}
	if req.ThreadID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	client, release := h.clients.Acquire()
	defer release()

	result, err := client.HandleTurn(r.Context(), auth.OwnerID(r.Context()), req.ThreadID, req.Message)
	if err != nil {
		writeFailure(w, h.log(r), err, "Failed to process chat turn")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListThreads handles GET /api/thread.
func (h *ChatHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	client, release := h.clients.Acquire()
	defer release()

	threads, err := client.ListThreads(r.Context(), auth.OwnerID(r.Context()))
	if err != nil {
		writeFailure(w, h.log(r), err, "Failed to fetch threads")
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

// GetThread handles GET /api/thread/{threadId} and returns its messages.
func (h *ChatHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	client, release := h.clients.Acquire()
	defer release()

	messages, err := client.GetThreadMessages(r.Context(), auth.OwnerID(r.Context()), r.PathValue("threadId"))
	if err != nil {
		writeFailure(w, h.log(r), err, "Failed to fetch chat")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// DeleteThread handles DELETE /api/thread/{threadId}.
func (h *ChatHandler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	client, release := h.clients.Acquire()
	defer release()

	if err := client.DeleteThread(r.Context(), auth.OwnerID(r.Context()), r.PathValue("threadId")); err != nil {
		writeFailure(w, h.log(r), err, "Failed to delete thread")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: "Thread deleted successfully"})
}

func (h *ChatHandler) log(r *http.Request) *slog.Logger {
	return observability.WithRequestID(r.Context(), h.logger)
}

// AuthHandler serves signup and login.
type AuthHandler struct {
	service     *auth.Service
	logger      *slog.Logger
	maxBodySize int64
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(service *auth.Service, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{service: service, logger: logger, maxBodySize: httputil.DefaultMaxRequestBodyBytes}
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeBody(w, r, h.maxBodySize, &req) {
		return
	}
	session, err := h.service.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		writeFailure(w, observability.WithRequestID(r.Context(), h.logger), err, "Signup failed.")
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeBody(w, r, h.maxBodySize, &req) {
		return
	}
	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeFailure(w, observability.WithRequestID(r.Context(), h.logger), err, "Login failed.")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Pinger is satisfied by stores whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	clients *ClientSwapper
	extra   map[string]Pinger
	timeout time.Duration
}

// NewHealthHandler creates a HealthHandler. Readiness pings the current
// client's thread store plus every extra dependency.
func NewHealthHandler(clients *ClientSwapper, extra map[string]Pinger) *HealthHandler {
	return &HealthHandler{clients: clients, extra: extra, timeout: 2 * time.Second}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	client, release := h.clients.Acquire()
	defer release()

	checks := map[string]string{}
	healthy := true
	check := func(name string, p Pinger) {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	check("store", client.Store())
	for name, p := range h.extra {
		check(name, p)
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unavailable"
	}
	writeJSON(w, status, map[string]any{"status": state, "checks": checks})
}

// decodeBody reads a bounded JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, maxBytes int64, v any) bool {
	body, err := httputil.ReadLimitedBody(r.Body, maxBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrResponseBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}
