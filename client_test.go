package thunderchat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/thunderchat/internal/local"
	"github.com/blueberrycongee/thunderchat/internal/store"
	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
	"github.com/blueberrycongee/thunderchat/pkg/types"
)

type fakeSender struct {
	name    string
	calls   atomic.Int32
	timeout atomic.Int64
	fn      func(ctx context.Context, model, text string) (string, error)
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(ctx context.Context, model, text string, timeout time.Duration) (string, error) {
	f.calls.Add(1)
	f.timeout.Store(int64(timeout))
	return f.fn(ctx, model, text)
}

func replying(name, reply string) *fakeSender {
	return &fakeSender{name: name, fn: func(context.Context, string, string) (string, error) {
		return reply, nil
	}}
}

func failing(name string, err *llmerrors.ProviderError) *fakeSender {
	return &fakeSender{name: name, fn: func(context.Context, string, string) (string, error) {
		return "", err
	}}
}

func withNoSleep() Option {
	return func(c *ClientConfig) {
		c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	}
}

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{withNoSleep()}, opts...)
	c, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestHandleTurn_FirstSuccessWins(t *testing.T) {
	a := failing("a", llmerrors.NewAuthError("a", "", 401, "bad key"))
	b := replying("b", "from b")
	c := replying("c", "from c")

	client := newTestClient(t,
		WithProviderInstance("a", a, nil, RetryPolicy{}),
		WithProviderInstance("b", b, nil, RetryPolicy{}),
		WithProviderInstance("c", c, nil, RetryPolicy{}),
	)

	res, err := client.HandleTurn(context.Background(), "alice", "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "from b", res.Reply)
	assert.Equal(t, "b", res.Provider)
	assert.False(t, res.Fallback)
	assert.Empty(t, res.Diagnostic)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestHandleTurn_BlankReplyTriesNextProvider(t *testing.T) {
	blank := replying("blank", "   ")
	good := replying("good", "real answer")

	client := newTestClient(t,
		WithProviderInstance("blank", blank, nil, RetryPolicy{}),
		WithProviderInstance("good", good, nil, RetryPolicy{}),
	)

	res, err := client.HandleTurn(context.Background(), "alice", "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "real answer", res.Reply)
	assert.Equal(t, "good", res.Provider)
	assert.False(t, res.Fallback)
	assert.Equal(t, int32(1), good.calls.Load())

	msgs, err := client.GetThreadMessages(context.Background(), "alice", "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "real answer", msgs[1].Content)
}

func TestHandleTurn_InstancesGetDefaultAttemptTimeout(t *testing.T) {
	s := replying("custom", "ok")
	client := newTestClient(t, WithProviderInstance("custom", s, nil, RetryPolicy{}))

	_, err := client.HandleTurn(context.Background(), "alice", "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, DefaultAttemptTimeout, time.Duration(s.timeout.Load()))
}

func TestHandleTurn_ModelSubFallback(t *testing.T) {
	var models []string
	var mu sync.Mutex
	s := &fakeSender{name: "router", fn: func(_ context.Context, model, _ string) (string, error) {
		mu.Lock()
		models = append(models, model)
		mu.Unlock()
		if model == "m2" {
			return "ok", nil
		}
		return "", llmerrors.NewBadResponseError("router", model, "empty")
	}}

	client := newTestClient(t, WithProviderInstance("router", s, []string{"m1", "m2", "m3"}, RetryPolicy{}))
	res, err := client.HandleTurn(context.Background(), "alice", "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m2", res.Model)
	assert.Equal(t, []string{"m1", "m2"}, models)
}

func TestHandleTurn_ExhaustionUsesLocalResponder(t *testing.T) {
	client := newTestClient(t,
		WithProviderInstance("a", failing("a", llmerrors.NewServerError("a", "", 503, "down")), nil, RetryPolicy{MaxAttempts: 1}),
		WithProviderInstance("b", failing("b", llmerrors.NewAuthError("b", "", 403, "forbidden")), nil, RetryPolicy{}),
	)

	res, err := client.HandleTurn(context.Background(), "alice", "t1", "what is 2+2*5")
	require.NoError(t, err)
	assert.Equal(t, "Result: 12", res.Reply)
	assert.True(t, res.Fallback)
	assert.Equal(t, "b: forbidden", res.Diagnostic)
	assert.Empty(t, res.Provider)
}

func TestHandleTurn_ApologyWhenNotArithmetic(t *testing.T) {
	client := newTestClient(t,
		WithProviderInstance("a", failing("a", llmerrors.NewBadResponseError("a", "", "empty")), nil, RetryPolicy{}),
	)

	for _, text := range []string{"2++2", "tell me a joke"} {
		res, err := client.HandleTurn(context.Background(), "alice", "t-"+text, text)
		require.NoError(t, err)
		assert.Equal(t, local.Apology, res.Reply)
		assert.True(t, res.Fallback)
	}
}

func TestHandleTurn_RetryBudgetRespected(t *testing.T) {
	limited := failing("limited", llmerrors.NewRateLimitError("limited", "", "slow down"))
	next := replying("next", "fine")

	client := newTestClient(t,
		WithProviderInstance("limited", limited, nil, RetryPolicy{MaxAttempts: 3}),
		WithProviderInstance("next", next, nil, RetryPolicy{}),
	)

	res, err := client.HandleTurn(context.Background(), "alice", "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Reply)
	assert.Equal(t, int32(3), limited.calls.Load())
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestHandleTurn_DeadlineFallsBackLocally(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// Ignores ctx entirely, so only the orchestrator's race can end the turn.
	stuck := &fakeSender{name: "stuck", fn: func(context.Context, string, string) (string, error) {
		<-release
		return "too late", nil
	}}

	client := newTestClient(t,
		WithProviderInstance("stuck", stuck, nil, RetryPolicy{}),
		WithTurnDeadline(100*time.Millisecond),
	)

	start := time.Now()
	res, err := client.HandleTurn(context.Background(), "alice", "t1", "1+1")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, "Result: 2", res.Reply)
	assert.True(t, res.Fallback)
	assert.Equal(t, "turn deadline exceeded", res.Diagnostic)
}

func TestHandleTurn_DeadlineCancelsInFlightAttempt(t *testing.T) {
	var cancelled atomic.Bool
	slow := &fakeSender{name: "slow", fn: func(ctx context.Context, model, _ string) (string, error) {
		<-ctx.Done()
		cancelled.Store(true)
		return "", llmerrors.NewTimeoutError("slow", model, "request timed out")
	}}

	client := newTestClient(t,
		WithProviderInstance("slow", slow, nil, RetryPolicy{}),
		WithTurnDeadline(50*time.Millisecond),
	)

	res, err := client.HandleTurn(context.Background(), "alice", "t1", "hello")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
}

func TestHandleTurn_EmptyChain(t *testing.T) {
	client := newTestClient(t)

	res, err := client.HandleTurn(context.Background(), "alice", "t1", "3*3")
	require.NoError(t, err)
	assert.Equal(t, "Result: 9", res.Reply)
	assert.Equal(t, "no providers configured", res.Diagnostic)
}

func TestHandleTurn_AppendOnlyAndTitleImmutable(t *testing.T) {
	var n atomic.Int32
	s := &fakeSender{name: "p", fn: func(context.Context, string, string) (string, error) {
		return "reply " + string(rune('0'+n.Add(1))), nil
	}}
	client := newTestClient(t, WithProviderInstance("p", s, nil, RetryPolicy{}))
	ctx := context.Background()

	inputs := []string{"first question", "second", "third"}
	for _, text := range inputs {
		_, err := client.HandleTurn(ctx, "alice", "t1", text)
		require.NoError(t, err)
	}

	msgs, err := client.GetThreadMessages(ctx, "alice", "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2*len(inputs))
	for i, msg := range msgs {
		if i%2 == 0 {
			assert.Equal(t, types.RoleUser, msg.Role)
			assert.Equal(t, inputs[i/2], msg.Content)
		} else {
			assert.Equal(t, types.RoleAssistant, msg.Role)
			assert.NotEmpty(t, msg.Content)
		}
	}

	list, err := client.ListThreads(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first question", list[0].Title)
	assert.Equal(t, 6, list[0].MessageCount)
}

func TestHandleTurn_Validation(t *testing.T) {
	s := replying("p", "never")
	client := newTestClient(t, WithProviderInstance("p", s, nil, RetryPolicy{}))

	tests := []struct {
		name     string
		owner    string
		threadID string
		text     string
		field    string
	}{
		{"empty message", "alice", "t1", "", "message"},
		{"blank message", "alice", "t1", "   \n", "message"},
		{"message too long", "alice", "t1", strings.Repeat("é", MaxMessageLength+1), "message"},
		{"missing thread", "alice", "", "hi", "threadId"},
		{"thread too long", "alice", strings.Repeat("x", MaxThreadIDLength+1), "hi", "threadId"},
		{"missing owner", "", "t1", "hi", "ownerId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.HandleTurn(context.Background(), tt.owner, tt.threadID, tt.text)
			var ve *llmerrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
	assert.Equal(t, int32(0), s.calls.Load())

	_, err := client.HandleTurn(context.Background(), "alice", strings.Repeat("x", MaxThreadIDLength), strings.Repeat("a", MaxMessageLength))
	assert.NoError(t, err)
}

type flakyStore struct {
	*store.MemoryStore
	findErr error
	saveErr error
	saves   atomic.Int32
}

func (s *flakyStore) FindThread(ctx context.Context, owner, id string) (*types.Thread, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.MemoryStore.FindThread(ctx, owner, id)
}

func (s *flakyStore) Save(ctx context.Context, th *types.Thread) error {
	s.saves.Add(1)
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryStore.Save(ctx, th)
}

func TestHandleTurn_SaveFailureKeepsReply(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), saveErr: errors.New("disk full")}
	client := newTestClient(t,
		WithStore(st),
		WithProviderInstance("p", replying("p", "answer"), nil, RetryPolicy{}),
	)

	res, err := client.HandleTurn(context.Background(), "alice", "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Reply)
	assert.Equal(t, int32(1), st.saves.Load())
}

func TestHandleTurn_LoadFailureSkipsSave(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), findErr: errors.New("connection refused")}
	client := newTestClient(t,
		WithStore(st),
		WithProviderInstance("p", replying("p", "answer"), nil, RetryPolicy{}),
	)

	res, err := client.HandleTurn(context.Background(), "alice", "t1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Reply)
	assert.Equal(t, int32(0), st.saves.Load())
}

func TestHandleTurn_SavesAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSender{name: "p", fn: func(context.Context, string, string) (string, error) {
		cancel()
		return "done", nil
	}}
	client := newTestClient(t, WithProviderInstance("p", s, nil, RetryPolicy{}))

	_, err := client.HandleTurn(ctx, "alice", "t1", "hi")
	require.NoError(t, err)

	msgs, err := client.GetThreadMessages(context.Background(), "alice", "t1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestThreads_OwnerScoped(t *testing.T) {
	client := newTestClient(t, WithProviderInstance("p", replying("p", "ok"), nil, RetryPolicy{}))
	ctx := context.Background()

	_, err := client.HandleTurn(ctx, "alice", "shared", "alice's thread")
	require.NoError(t, err)

	_, err = client.GetThreadMessages(ctx, "bob", "shared")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, client.DeleteThread(ctx, "bob", "shared"), ErrNotFound)

	_, err = client.HandleTurn(ctx, "bob", "shared", "bob's thread")
	require.NoError(t, err)

	aliceList, err := client.ListThreads(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceList, 1)
	assert.Equal(t, "alice's thread", aliceList[0].Title)

	require.NoError(t, client.DeleteThread(ctx, "alice", "shared"))
	_, err = client.GetThreadMessages(ctx, "alice", "shared")
	assert.ErrorIs(t, err, ErrNotFound)

	msgs, err := client.GetThreadMessages(ctx, "bob", "shared")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestNew_ConfiguredProviders(t *testing.T) {
	var hits atomic.Int32
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reply":"relayed answer"}`))
	}))
	t.Cleanup(relay.Close)

	client := newTestClient(t,
		// No API key: skipped without network I/O.
		WithProvider(ProviderConfig{Name: "gemini", Type: "gemini"}),
		WithProvider(ProviderConfig{
			Name:                "relay",
			Type:                "relay",
			BaseURL:             relay.URL,
			AllowPrivateBaseURL: true,
		}),
	)
	assert.Equal(t, []string{"gemini", "relay"}, client.Providers())

	res, err := client.HandleTurn(context.Background(), "alice", "t1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "relayed answer", res.Reply)
	assert.Equal(t, "relay", res.Provider)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNew_UnknownProviderType(t *testing.T) {
	_, err := New(WithProvider(ProviderConfig{Name: "x", Type: "nope"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider type")
}

type closeCountingStore struct {
	*store.MemoryStore
	closed atomic.Int32
}

func (s *closeCountingStore) Close() error {
	s.closed.Add(1)
	return nil
}

func TestClose_LeavesSuppliedStoreOpen(t *testing.T) {
	shared := &closeCountingStore{MemoryStore: store.NewMemoryStore()}

	c, err := New(WithStore(shared))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Zero(t, shared.closed.Load())
}
