package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/blueberrycongee/thunderchat/pkg/types"
)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Database     string        `yaml:"database"`
	SSLMode      string        `yaml:"ssl_mode"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// DefaultPostgresConfig returns sensible defaults.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:         "localhost",
		Port:         5432,
		Database:     "thunderchat",
		SSLMode:      "disable",
		MaxOpenConns: 25,
		MaxIdleConns: 5,
		ConnLifetime: 5 * time.Minute,
	}
}

// DSN renders the lib/pq connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// OpenPostgres opens and pings a connection pool. The pool is shared by the
// thread store and the user store.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

const threadsSchema = `
CREATE TABLE IF NOT EXISTS chat_threads (
	owner_id   TEXT        NOT NULL,
	thread_id  TEXT        NOT NULL,
	title      TEXT        NOT NULL,
	messages   JSONB       NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (owner_id, thread_id)
);
CREATE INDEX IF NOT EXISTS chat_threads_owner_updated_idx
	ON chat_threads (owner_id, updated_at DESC);
`

// PostgresStore implements ThreadStore on a chat_threads table. Messages are
// stored as a JSONB array on the thread row.
type PostgresStore struct {
	db  *sql.DB
	now Clock
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: utcNow}
}

// Migrate creates the thread table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, threadsSchema); err != nil {
		return fmt.Errorf("migrate threads: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindThread(ctx context.Context, ownerID, threadID string) (*types.Thread, error) {
	query := `
		SELECT title, messages, created_at, updated_at
		FROM chat_threads
		WHERE owner_id = $1 AND thread_id = $2
	`

	th := &types.Thread{OwnerID: ownerID, ThreadID: threadID}
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, ownerID, threadID).
		Scan(&th.Title, &raw, &th.CreatedAt, &th.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find thread: %w", err)
	}
	if err := decodeMessages(raw, th); err != nil {
		return nil, err
	}
	return th, nil
}

func (s *PostgresStore) CreateThread(ctx context.Context, ownerID, threadID, title string) (*types.Thread, error) {
	query := `
		INSERT INTO chat_threads (owner_id, thread_id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, '[]'::jsonb, $4, $4)
		ON CONFLICT (owner_id, thread_id) DO NOTHING
	`

	now := s.now()
	res, err := s.db.ExecContext(ctx, query, ownerID, threadID, title, now)
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		existing, err := s.FindThread(ctx, ownerID, threadID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}
	return types.NewThread(ownerID, threadID, title, now), nil
}

func (s *PostgresStore) Save(ctx context.Context, thread *types.Thread) error {
	if thread == nil || thread.OwnerID == "" || thread.ThreadID == "" {
		return fmt.Errorf("save: thread must have an owner and id")
	}
	msgs := thread.Messages
	if msgs == nil {
		msgs = []types.Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	// title and created_at are immutable once the row exists.
	query := `
		INSERT INTO chat_threads (owner_id, thread_id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, thread_id) DO UPDATE
		SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		thread.OwnerID, thread.ThreadID, thread.Title, raw, thread.CreatedAt, thread.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save thread: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListThreads(ctx context.Context, ownerID string) ([]types.ThreadSummary, error) {
	query := `
		SELECT thread_id, title, jsonb_array_length(messages), created_at, updated_at
		FROM chat_threads
		WHERE owner_id = $1
		ORDER BY updated_at DESC, thread_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	out := make([]types.ThreadSummary, 0)
	for rows.Next() {
		var sum types.ThreadSummary
		if err := rows.Scan(&sum.ThreadID, &sum.Title, &sum.MessageCount, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteThread(ctx context.Context, ownerID, threadID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_threads WHERE owner_id = $1 AND thread_id = $2`, ownerID, threadID)
	if err != nil {
		return false, fmt.Errorf("delete thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete thread: %w", err)
	}
	return n > 0, nil
}

// DeleteOrphans removes threads whose owner no longer exists in the users
// table and returns how many were removed. Externally issued owners are
// never orphans.
func (s *PostgresStore) DeleteOrphans(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM chat_threads t
		WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = t.owner_id)
		  AND t.owner_id NOT LIKE '%|%'
	`
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete orphans: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func decodeMessages(raw []byte, th *types.Thread) error {
	th.Messages = []types.Message{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &th.Messages); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}
	return nil
}
