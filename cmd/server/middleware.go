package main

import (
	"net/http"

	"github.com/blueberrycongee/thunderchat/internal/config"
	"github.com/blueberrycongee/thunderchat/internal/metrics"
	"github.com/blueberrycongee/thunderchat/internal/observability"
)

// buildMiddlewareStack wraps the mux with the global middleware. Auth and
// rate limiting are per route and live in api.RegisterRoutes.
func buildMiddlewareStack(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	if cfg == nil {
		return nil, errNilConfig
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			return nil
		}
		handler := next
		if cfg.Metrics.Enabled {
			handler = metrics.Middleware(handler)
		}
		handler = observability.RequestIDMiddleware(handler)
		handler = corsMiddleware(cfg.CORS, handler)
		return handler
	}, nil
}
