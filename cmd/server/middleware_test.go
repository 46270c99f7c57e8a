package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/thunderchat/internal/metrics"
	"github.com/blueberrycongee/thunderchat/internal/observability"
)

func TestMiddlewareStack_RequestIDAndMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://app.example"}

	stack, err := buildMiddlewareStack(cfg)
	require.NoError(t, err)

	var seenID string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/thread/{threadId}", func(w http.ResponseWriter, r *http.Request) {
		seenID = observability.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	handler := stack(mux)

	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/api/thread/{threadId}", "418"))

	req := httptest.NewRequest(http.MethodGet, "/api/thread/abc", nil)
	req.Header.Set(observability.RequestIDHeader, "req-123")
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTeapot, rr.Code)
	require.Equal(t, "req-123", seenID)
	require.Equal(t, "req-123", rr.Header().Get(observability.RequestIDHeader))
	require.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))

	after := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/api/thread/{threadId}", "418"))
	require.Equal(t, before+1, after)
}

func TestMiddlewareStack_NilConfig(t *testing.T) {
	_, err := buildMiddlewareStack(nil)
	require.ErrorIs(t, err, errNilConfig)
}
