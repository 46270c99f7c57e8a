package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/thunderchat/internal/auth"
	"github.com/blueberrycongee/thunderchat/internal/config"
	"github.com/blueberrycongee/thunderchat/internal/store"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func stubPostgres(t *testing.T, db *sql.DB, err error) {
	t.Helper()
	prev := openPostgres
	openPostgres = func(context.Context, store.PostgresConfig) (*sql.DB, error) { return db, err }
	t.Cleanup(func() { openPostgres = prev })
}

func TestOpenBackends_Memory(t *testing.T) {
	b, err := openBackends(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.MemoryStore{}, b.threads)
	assert.IsType(t, &auth.MemoryUserStore{}, b.users)
	assert.Nil(t, b.db)
	assert.Nil(t, b.redis)
	assert.Empty(t, b.pingers)
}

func TestOpenBackends_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	stubPostgres(t, db, nil)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chat_threads").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	cfg := testConfig()
	cfg.Store.Type = "postgres"

	b, err := openBackends(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &store.PostgresStore{}, b.threads)
	assert.IsType(t, &auth.PostgresUserStore{}, b.users)
	assert.Contains(t, b.pingers, "postgres")

	require.NoError(t, b.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenBackends_PostgresMigrationFailureCloses(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	stubPostgres(t, db, nil)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	cfg := testConfig()
	cfg.Store.Type = "postgres"

	_, err = openBackends(context.Background(), cfg, discardLogger())
	require.ErrorContains(t, err, "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenBackends_PostgresUnavailable(t *testing.T) {
	stubPostgres(t, nil, errors.New("connection refused"))

	cfg := testConfig()
	cfg.Auth.UserStore = "postgres"

	_, err := openBackends(context.Background(), cfg, discardLogger())
	require.ErrorContains(t, err, "init postgres")
}

func TestOpenBackends_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Store.Type = "redis"
	cfg.Store.Redis.Addr = mr.Addr()

	b, err := openBackends(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.RedisStore{}, b.threads)
	assert.IsType(t, &auth.MemoryUserStore{}, b.users)
	require.NotNil(t, b.redis)
	require.NoError(t, b.pingers["redis"].Ping(context.Background()))
	require.NoError(t, b.threads.Ping(context.Background()))
}

func TestOpenBackends_NilConfig(t *testing.T) {
	_, err := openBackends(context.Background(), nil, discardLogger())
	require.ErrorIs(t, err, errNilConfig)
}
