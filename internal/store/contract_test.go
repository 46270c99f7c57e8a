package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/thunderchat/pkg/types"
)

// runThreadStoreContract exercises behavior every ThreadStore must share.
// newStore receives a clock the store should use for new threads.
func runThreadStoreContract(t *testing.T, newStore func(t *testing.T, now Clock) ThreadStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixed := func() time.Time { return base }

	t.Run("find missing returns nil", func(t *testing.T) {
		s := newStore(t, fixed)
		th, err := s.FindThread(ctx, "alice", "t1")
		require.NoError(t, err)
		assert.Nil(t, th)
	})

	t.Run("create then find", func(t *testing.T) {
		s := newStore(t, fixed)
		created, err := s.CreateThread(ctx, "alice", "t1", "what is 2+2")
		require.NoError(t, err)
		assert.Equal(t, "what is 2+2", created.Title)
		assert.Empty(t, created.Messages)

		got, err := s.FindThread(ctx, "alice", "t1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "alice", got.OwnerID)
		assert.Equal(t, "what is 2+2", got.Title)
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("create twice keeps the first title", func(t *testing.T) {
		s := newStore(t, fixed)
		_, err := s.CreateThread(ctx, "alice", "t1", "first")
		require.NoError(t, err)
		again, err := s.CreateThread(ctx, "alice", "t1", "second")
		require.NoError(t, err)
		assert.Equal(t, "first", again.Title)
	})

	t.Run("owners are isolated", func(t *testing.T) {
		s := newStore(t, fixed)
		_, err := s.CreateThread(ctx, "alice", "t1", "alice thread")
		require.NoError(t, err)

		other, err := s.FindThread(ctx, "bob", "t1")
		require.NoError(t, err)
		assert.Nil(t, other)

		_, err = s.CreateThread(ctx, "bob", "t1", "bob thread")
		require.NoError(t, err)

		a, err := s.FindThread(ctx, "alice", "t1")
		require.NoError(t, err)
		b, err := s.FindThread(ctx, "bob", "t1")
		require.NoError(t, err)
		assert.Equal(t, "alice thread", a.Title)
		assert.Equal(t, "bob thread", b.Title)

		deleted, err := s.DeleteThread(ctx, "bob", "t1")
		require.NoError(t, err)
		assert.True(t, deleted)

		a, err = s.FindThread(ctx, "alice", "t1")
		require.NoError(t, err)
		assert.NotNil(t, a)
	})

	t.Run("save appends and keeps title", func(t *testing.T) {
		s := newStore(t, fixed)
		th, err := s.CreateThread(ctx, "alice", "t1", "original")
		require.NoError(t, err)

		th.Append(types.RoleUser, "hi", base.Add(time.Second))
		th.Append(types.RoleAssistant, "hello", base.Add(2*time.Second))
		th.Title = "changed"
		require.NoError(t, s.Save(ctx, th))

		got, err := s.FindThread(ctx, "alice", "t1")
		require.NoError(t, err)
		require.Len(t, got.Messages, 2)
		assert.Equal(t, types.RoleUser, got.Messages[0].Role)
		assert.Equal(t, "hello", got.Messages[1].Content)
		assert.Equal(t, "original", got.Title)
		assert.True(t, got.UpdatedAt.Equal(base.Add(2*time.Second)))
	})

	t.Run("list is most recent first", func(t *testing.T) {
		s := newStore(t, fixed)
		for i, id := range []string{"a", "b", "c"} {
			th, err := s.CreateThread(ctx, "alice", id, "title "+id)
			require.NoError(t, err)
			th.Append(types.RoleUser, "msg", base.Add(time.Duration(i+1)*time.Minute))
			require.NoError(t, s.Save(ctx, th))
		}
		// Touch "a" so it becomes the most recent.
		a, err := s.FindThread(ctx, "alice", "a")
		require.NoError(t, err)
		a.Append(types.RoleAssistant, "reply", base.Add(time.Hour))
		require.NoError(t, s.Save(ctx, a))

		_, err = s.CreateThread(ctx, "bob", "z", "not alice")
		require.NoError(t, err)

		list, err := s.ListThreads(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "a", list[0].ThreadID)
		assert.Equal(t, 2, list[0].MessageCount)
		assert.Equal(t, "c", list[1].ThreadID)
		assert.Equal(t, "b", list[2].ThreadID)
	})

	t.Run("list empty owner", func(t *testing.T) {
		s := newStore(t, fixed)
		list, err := s.ListThreads(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("delete missing reports false", func(t *testing.T) {
		s := newStore(t, fixed)
		deleted, err := s.DeleteThread(ctx, "alice", "missing")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("delete removes from listing", func(t *testing.T) {
		s := newStore(t, fixed)
		_, err := s.CreateThread(ctx, "alice", "t1", "x")
		require.NoError(t, err)
		deleted, err := s.DeleteThread(ctx, "alice", "t1")
		require.NoError(t, err)
		assert.True(t, deleted)

		list, err := s.ListThreads(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("save rejects anonymous thread", func(t *testing.T) {
		s := newStore(t, fixed)
		assert.Error(t, s.Save(ctx, &types.Thread{ThreadID: "t1"}))
	})
}
