package provider

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
)

type stubAdapter struct {
	baseURL    string
	configured bool
	plainText  bool
	rules      []Extractor
}

func (a *stubAdapter) Name() string     { return "stub" }
func (a *stubAdapter) Models() []string { return []string{"m1"} }

func (a *stubAdapter) Configured() (bool, string) {
	if !a.configured {
		return false, "missing api key"
	}
	return true, ""
}

func (a *stubAdapter) BuildRequest(ctx context.Context, model, text string) (*http.Request, error) {
	body, err := json.Marshal(map[string]string{"model": model, "input": text})
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
}

func (a *stubAdapter) Rules() []Extractor    { return a.rules }
func (a *stubAdapter) AcceptsPlainText() bool { return a.plainText }

func (a *stubAdapter) MapError(model string, statusCode int, body []byte) *llmerrors.ProviderError {
	return MapStatus(a.Name(), model, statusCode, body)
}

func newStub(url string) *stubAdapter {
	return &stubAdapter{
		baseURL:    url,
		configured: true,
		rules:      []Extractor{Path("reply"), Path("choices.0.message.content")},
	}
}

func TestClient_NotConfiguredMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	adapter := newStub(srv.URL)
	adapter.configured = false

	_, err := NewClient(adapter).Send(context.Background(), "m1", "hi", time.Second)
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindNotConfigured, llmerrors.KindOf(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   llmerrors.FailureKind
	}{
		{http.StatusTooManyRequests, llmerrors.KindRateLimited},
		{http.StatusUnauthorized, llmerrors.KindAuthError},
		{http.StatusForbidden, llmerrors.KindAuthError},
		{http.StatusRequestTimeout, llmerrors.KindTimeout},
		{http.StatusInternalServerError, llmerrors.KindServerError},
		{http.StatusServiceUnavailable, llmerrors.KindServerError},
		{http.StatusNotFound, llmerrors.KindBadResponse},
		{http.StatusBadRequest, llmerrors.KindBadResponse},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream said no"}}`))
			}))
			defer srv.Close()

			_, err := NewClient(newStub(srv.URL)).Send(context.Background(), "m1", "hi", time.Second)
			require.Error(t, err)

			var pe *llmerrors.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, "upstream said no", pe.Message)
			if tt.kind == llmerrors.KindServerError {
				assert.Equal(t, tt.status, pe.Status)
			}
		})
	}
}

func TestClient_SuccessBodies(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		plainText bool
		want      string
		kind      llmerrors.FailureKind
	}{
		{name: "first rule", body: `{"reply":"  hello  "}`, want: "hello"},
		{name: "second rule", body: `{"choices":[{"message":{"content":"from choices"}}]}`, want: "from choices"},
		{name: "blank first rule falls through", body: `{"reply":"   ","choices":[{"message":{"content":"ok"}}]}`, want: "ok"},
		{name: "raw body fallback", body: `{"unexpected":{"shape":1}}`, want: `{"unexpected":{"shape":1}}`},
		{name: "json string body", body: `"just text"`, want: "just text"},
		{name: "empty object", body: `{}`, kind: llmerrors.KindBadResponse},
		{name: "null", body: `null`, kind: llmerrors.KindBadResponse},
		{name: "whitespace", body: "  \n ", kind: llmerrors.KindBadResponse},
		{name: "blank string", body: `"   "`, kind: llmerrors.KindBadResponse},
		{name: "invalid json", body: `<html>oops</html>`, kind: llmerrors.KindBadResponse},
		{name: "plain text allowed", body: "plain reply", plainText: true, want: "plain reply"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.plainText {
					w.Header().Set("Content-Type", "text/plain")
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			adapter := newStub(srv.URL)
			adapter.plainText = tt.plainText

			got, err := NewClient(adapter).Send(context.Background(), "m1", "hi", time.Second)
			if tt.kind != llmerrors.KindUnknown {
				require.Error(t, err)
				assert.Equal(t, tt.kind, llmerrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_TimeoutAbortsRequest(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(released)
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	_, err := NewClient(newStub(srv.URL)).Send(context.Background(), "m1", "hi", 50*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindTimeout, llmerrors.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the aborted request")
	}
}

func TestClient_ConnectionRefusedIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(newStub(url)).Send(context.Background(), "m1", "hi", time.Second)
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindNetworkError, llmerrors.KindOf(err))
}

func TestClient_OversizeBodyIsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reply":"` + string(bytes.Repeat([]byte("a"), 128)) + `"}`))
	}))
	defer srv.Close()

	_, err := NewClient(newStub(srv.URL), WithMaxResponseBytes(32)).Send(context.Background(), "m1", "hi", time.Second)
	require.Error(t, err)
	assert.Equal(t, llmerrors.KindBadResponse, llmerrors.KindOf(err))
}

func TestConfig_CloneIsIndependent(t *testing.T) {
	cfg := Config{Name: "a", Models: []string{"x"}, Headers: map[string]string{"k": "v"}}
	cp := cfg.Clone()
	cp.Models[0] = "y"
	cp.Headers["k"] = "w"

	assert.Equal(t, "x", cfg.Models[0])
	assert.Equal(t, "v", cfg.Headers["k"])
}

func TestResolveBaseURL(t *testing.T) {
	got, err := ResolveBaseURL(Config{Name: "p"}, "https://api.example.com/v1/")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", got)

	_, err = ResolveBaseURL(Config{Name: "p", BaseURL: "http://127.0.0.1:8080"}, "")
	require.Error(t, err)

	got, err = ResolveBaseURL(Config{Name: "p", BaseURL: "http://127.0.0.1:8080/", AllowPrivateBaseURL: true}, "")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", got)

	_, err = ResolveBaseURL(Config{Name: "p", BaseURL: "https://api.example.com/?key=x"}, "")
	require.Error(t, err)
}
