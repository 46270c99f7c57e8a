package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/thunderchat/internal/secret"
)

func newFakeVault(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/secret/data/chat":
			_, _ = w.Write([]byte(`{"data":{"data":{"gemini":"AIza-vault","value":"default"},"metadata":{"version":1}}}`))
		case "/v1/kv/legacy":
			_, _ = w.Write([]byte(`{"data":{"value":"v1-secret"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProvider_Get(t *testing.T) {
	srv := newFakeVault(t)
	p, err := New(Config{Address: srv.URL, AuthMethod: "token", Token: "root"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	ctx := context.Background()

	v, err := p.Get(ctx, "secret/data/chat#gemini")
	require.NoError(t, err)
	assert.Equal(t, "AIza-vault", v)

	v, err = p.Get(ctx, "secret/data/chat")
	require.NoError(t, err)
	assert.Equal(t, "default", v)

	v, err = p.Get(ctx, "kv/legacy")
	require.NoError(t, err)
	assert.Equal(t, "v1-secret", v)

	_, err = p.Get(ctx, "secret/data/chat#missing")
	assert.ErrorIs(t, err, secret.ErrNotFound)

	_, err = p.Get(ctx, "secret/data/absent")
	assert.ErrorIs(t, err, secret.ErrNotFound)
}

func TestNew_TokenRequired(t *testing.T) {
	_, err := New(Config{Address: "http://127.0.0.1:1", AuthMethod: "token"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Address: "http://127.0.0.1:1", AuthMethod: "kerberos"}, nil)
	assert.Error(t, err)
}

func TestSplitPath(t *testing.T) {
	path, key := SplitPath("secret/data/x#api_key")
	assert.Equal(t, "secret/data/x", path)
	assert.Equal(t, "api_key", key)

	path, key = SplitPath("secret/data/x")
	assert.Equal(t, "secret/data/x", path)
	assert.Equal(t, DefaultKey, key)
}
