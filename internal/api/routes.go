package api //nolint:revive // package name is intentional

import (
	"net/http"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Routes bundles everything RegisterRoutes mounts.
type Routes struct {
	Chat   *ChatHandler
	Auth   *AuthHandler
	Health *HealthHandler

	// RequireAuth guards the thread and chat endpoints.
	RequireAuth Middleware
	// RateLimit, when set, applies to POST /api/chat after RequireAuth.
	RateLimit Middleware

	Metrics     http.Handler
	MetricsPath string
}

// RegisterRoutes registers all API routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, rt Routes) {
	mux.HandleFunc("GET /health/live", rt.Health.Live)
	mux.HandleFunc("GET /health/ready", rt.Health.Ready)
	if rt.Metrics != nil {
		path := rt.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, rt.Metrics)
	}

	mux.HandleFunc("POST /api/auth/signup", rt.Auth.Signup)
	mux.HandleFunc("POST /api/auth/login", rt.Auth.Login)

	protect := rt.RequireAuth
	if protect == nil {
		protect = func(next http.Handler) http.Handler { return next }
	}
	chat := http.Handler(http.HandlerFunc(rt.Chat.Chat))
	if rt.RateLimit != nil {
		chat = rt.RateLimit(chat)
	}

	mux.Handle("POST /api/chat", protect(chat))
	mux.Handle("GET /api/thread", protect(http.HandlerFunc(rt.Chat.ListThreads)))
	mux.Handle("GET /api/thread/{threadId}", protect(http.HandlerFunc(rt.Chat.GetThread)))
	mux.Handle("DELETE /api/thread/{threadId}", protect(http.HandlerFunc(rt.Chat.DeleteThread)))
}
