package secret_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/thunderchat/internal/secret"
	"github.com/blueberrycongee/thunderchat/internal/secret/env"
)

type mapProvider struct {
	values map[string]string
	gets   atomic.Int32
	closed bool
}

func (m *mapProvider) Get(_ context.Context, path string) (string, error) {
	m.gets.Add(1)
	if path == "broken" {
		return "", errors.New("backend unavailable")
	}
	v, ok := m.values[path]
	if !ok {
		return "", fmt.Errorf("%s: %w", path, secret.ErrNotFound)
	}
	return v, nil
}

func (m *mapProvider) Close() error {
	m.closed = true
	return nil
}

func TestResolver(t *testing.T) {
	backend := &mapProvider{values: map[string]string{"gemini": " AIza-key \n"}}
	r := secret.NewResolver()
	r.Register("mem", backend)
	ctx := context.Background()

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{"  literal-key ", "literal-key", false},
		{"", "", false},
		{"mem://gemini", "AIza-key", false},
		{"mem://missing", "", false},
		{"mem://broken", "", true},
		{"nope://x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	require.NoError(t, r.Close())
	assert.True(t, backend.closed)
}

func TestScheme(t *testing.T) {
	assert.Equal(t, "env", secret.Scheme("env://KEY"))
	assert.Equal(t, "vault", secret.Scheme("vault://secret/data/x#k"))
	assert.Equal(t, "", secret.Scheme("plain"))
}

func TestCachedProvider(t *testing.T) {
	backend := &mapProvider{values: map[string]string{"k": "v"}}
	cached := secret.NewCachedProvider(backend, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := cached.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, int32(1), backend.gets.Load())

	_, err := cached.Get(ctx, "missing")
	assert.ErrorIs(t, err, secret.ErrNotFound)
	_, _ = cached.Get(ctx, "missing")
	assert.Equal(t, int32(3), backend.gets.Load(), "misses are not cached")

	cached.Flush()
	_, err = cached.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int32(4), backend.gets.Load())
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("THUNDERCHAT_TEST_KEY", "from-env")
	t.Setenv("THUNDERCHAT_BLANK_KEY", "   ")

	r := secret.NewResolver()
	r.Register("env", env.New())
	ctx := context.Background()

	v, err := r.Resolve(ctx, "env://THUNDERCHAT_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	v, err = r.Resolve(ctx, "env://THUNDERCHAT_BLANK_KEY")
	require.NoError(t, err)
	assert.Empty(t, v)

	v, err = r.Resolve(ctx, "env://THUNDERCHAT_DEFINITELY_UNSET")
	require.NoError(t, err)
	assert.Empty(t, v)
}
