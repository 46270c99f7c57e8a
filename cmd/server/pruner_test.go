package main

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/thunderchat/internal/auth"
	"github.com/blueberrycongee/thunderchat/internal/store"
)

func TestNewOrphanPruner_Memory(t *testing.T) {
	ctx := context.Background()
	threads := store.NewMemoryStore()
	users := auth.NewMemoryUserStore()

	user, err := users.CreateUser(ctx, "kept@example.com", "hash")
	require.NoError(t, err)
	_, err = threads.CreateThread(ctx, user.ID, "t1", "mine")
	require.NoError(t, err)
	_, err = threads.CreateThread(ctx, "deleted-user", "t1", "gone")
	require.NoError(t, err)

	prune := newOrphanPruner(threads, users)
	require.NotNil(t, prune)

	n, err := prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	th, err := threads.FindThread(ctx, user.ID, "t1")
	require.NoError(t, err)
	assert.NotNil(t, th)
}

func TestNewOrphanPruner_Unsupported(t *testing.T) {
	db := &sql.DB{}
	assert.Nil(t, newOrphanPruner(store.NewMemoryStore(), auth.NewPostgresUserStore(db)))
	assert.Nil(t, newOrphanPruner(store.NewPostgresStore(db), auth.NewMemoryUserStore()))
}

func TestStartPruneJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	stop := startPruneJob(ctx, func(context.Context) (int64, error) {
		runs.Add(1)
		return 0, nil
	}, 10*time.Millisecond, discardLogger())
	require.NotNil(t, stop)
	defer stop()

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestStartPruneJob_Disabled(t *testing.T) {
	ctx := context.Background()
	noop := func(context.Context) (int64, error) { return 0, nil }

	assert.Nil(t, startPruneJob(ctx, nil, time.Minute, nil))
	assert.Nil(t, startPruneJob(ctx, noop, 0, nil))
}
