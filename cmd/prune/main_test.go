package main

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/thunderchat/internal/store"
)

func writeConfig(t *testing.T, storeType string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "store:\n  type: " + storeType + "\nauth:\n  jwt_secret: test-secret\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_DeletesOrphans(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	prev := openPostgres
	openPostgres = func(context.Context, store.PostgresConfig) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { openPostgres = prev })

	mock.ExpectExec("DELETE FROM chat_threads t WHERE NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectClose()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n, err := run(context.Background(), writeConfig(t, "postgres"), logger)
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_RequiresPostgres(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := run(context.Background(), writeConfig(t, "redis"), logger)
	require.ErrorContains(t, err, "requires store.type postgres")
}
