package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeModelLabel_StripsOrgPrefix(t *testing.T) {
	if got := sanitizeModelLabel("meta-llama/llama-3.3-70b-instruct:free"); got != "llama-3.3-70b-instruct:free" {
		t.Fatalf("sanitizeModelLabel = %q", got)
	}
}

func TestSanitizeModelLabel_ReplacesInvalidChars(t *testing.T) {
	got := sanitizeModelLabel("gemini-2.5\n\t🚨")
	if strings.ContainsAny(got, "\n\t") {
		t.Fatalf("sanitizeModelLabel contains whitespace: %q", got)
	}
	if got == "default" {
		t.Fatalf("sanitizeModelLabel unexpectedly returned %q", got)
	}
}

func TestSanitizeModelLabel_CapsLength(t *testing.T) {
	long := strings.Repeat("a", maxModelLabelLen+50)
	got := sanitizeModelLabel(long)
	if len(got) != maxModelLabelLen {
		t.Fatalf("sanitizeModelLabel len=%d, want %d", len(got), maxModelLabelLen)
	}
}

func TestSanitizeModelLabel_EmptyFallback(t *testing.T) {
	if got := sanitizeModelLabel("   "); got != "default" {
		t.Fatalf("sanitizeModelLabel = %q, want %q", got, "default")
	}
}

func TestMiddleware_LabelsByPattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/thread/{threadId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := Middleware(mux)

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/api/thread/{threadId}", "404"))
	req := httptest.NewRequest(http.MethodGet, "/api/thread/abc-123", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/api/thread/{threadId}", "404"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestRecordTurn(t *testing.T) {
	before := testutil.ToFloat64(TurnsTotal.WithLabelValues(OutcomeLocal))
	RecordTurn(OutcomeLocal, 0.2)
	if got := testutil.ToFloat64(TurnsTotal.WithLabelValues(OutcomeLocal)) - before; got != 1 {
		t.Fatalf("turns_total delta = %v, want 1", got)
	}
}
