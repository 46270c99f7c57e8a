package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	"github.com/blueberrycongee/thunderchat/pkg/types"
)

// RedisConfig holds configuration for the Redis thread store.
type RedisConfig struct {
	// Single node configuration
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Cluster configuration
	ClusterAddrs []string `yaml:"cluster_addrs"`

	// Sentinel configuration
	SentinelAddrs  []string `yaml:"sentinel_addrs"`
	SentinelMaster string   `yaml:"sentinel_master"`

	Namespace    string        `yaml:"namespace"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries"`
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Namespace:    "thunderchat",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// NewRedisClient builds a cluster, sentinel or single node client depending
// on which addresses are set, and pings it.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (goredis.UniversalClient, error) {
	var client goredis.UniversalClient

	switch {
	case len(cfg.ClusterAddrs) > 0:
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	case len(cfg.SentinelAddrs) > 0:
		client = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.SentinelMaster,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    cfg.MaxRetries,
		})
	default:
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Hash fields of a thread record.
const (
	fieldTitle     = "title"
	fieldMessages  = "messages"
	fieldCount     = "count"
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

// RedisStore keeps each thread in a hash and indexes an owner's threads in
// a sorted set scored by UpdatedAt. Both keys carry the owner as a hash tag
// so transactions stay on one cluster slot.
type RedisStore struct {
	client    goredis.UniversalClient
	namespace string
	now       Clock
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client goredis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace, now: utcNow}
}

func (s *RedisStore) prefix() string {
	if s.namespace == "" {
		return ""
	}
	return s.namespace + ":"
}

// Owner and thread IDs are query-escaped so ':' and braces inside them
// cannot collide with the key layout.
func (s *RedisStore) threadKey(ownerID, threadID string) string {
	return s.prefix() + "thread:{" + url.QueryEscape(ownerID) + "}:" + url.QueryEscape(threadID)
}

func (s *RedisStore) indexKey(ownerID string) string {
	return s.prefix() + "threads:{" + url.QueryEscape(ownerID) + "}"
}

func (s *RedisStore) FindThread(ctx context.Context, ownerID, threadID string) (*types.Thread, error) {
	fields, err := s.client.HGetAll(ctx, s.threadKey(ownerID, threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis find thread: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	th := &types.Thread{OwnerID: ownerID, ThreadID: threadID, Title: fields[fieldTitle]}
	if th.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if th.UpdatedAt, err = parseTime(fields[fieldUpdatedAt]); err != nil {
		return nil, err
	}
	if err := decodeMessages([]byte(fields[fieldMessages]), th); err != nil {
		return nil, err
	}
	return th, nil
}

func (s *RedisStore) CreateThread(ctx context.Context, ownerID, threadID, title string) (*types.Thread, error) {
	now := s.now()
	key := s.threadKey(ownerID, threadID)
	stamp := formatTime(now)

	var created *goredis.BoolCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		created = pipe.HSetNX(ctx, key, fieldTitle, title)
		pipe.HSetNX(ctx, key, fieldCreatedAt, stamp)
		pipe.HSetNX(ctx, key, fieldUpdatedAt, stamp)
		pipe.HSetNX(ctx, key, fieldMessages, "[]")
		pipe.HSetNX(ctx, key, fieldCount, 0)
		pipe.ZAddNX(ctx, s.indexKey(ownerID), goredis.Z{Score: score(now), Member: threadID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis create thread: %w", err)
	}

	if !created.Val() {
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

func (s *RedisStore) Save(ctx context.Context, thread *types.Thread) error {
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

	key := s.threadKey(thread.OwnerID, thread.ThreadID)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldTitle, thread.Title)
		pipe.HSetNX(ctx, key, fieldCreatedAt, formatTime(thread.CreatedAt))
		pipe.HSet(ctx, key,
			fieldMessages, string(raw),
			fieldCount, len(msgs),
			fieldUpdatedAt, formatTime(thread.UpdatedAt),
		)
		pipe.ZAdd(ctx, s.indexKey(thread.OwnerID), goredis.Z{Score: score(thread.UpdatedAt), Member: thread.ThreadID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save thread: %w", err)
	}
	return nil
}

func (s *RedisStore) ListThreads(ctx context.Context, ownerID string) ([]types.ThreadSummary, error) {
	index := s.indexKey(ownerID)
	ids, err := s.client.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list threads: %w", err)
	}

	out := make([]types.ThreadSummary, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.SliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HMGet(ctx, s.threadKey(ownerID, id), fieldTitle, fieldCount, fieldCreatedAt, fieldUpdatedAt)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redis list threads: %w", err)
	}

	var stale []any
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 4 || vals[0] == nil {
			stale = append(stale, ids[i])
			continue
		}
		sum := types.ThreadSummary{ThreadID: ids[i], Title: asString(vals[0])}
		sum.MessageCount, _ = strconv.Atoi(asString(vals[1]))
		if sum.CreatedAt, err = parseTime(asString(vals[2])); err != nil {
			return nil, err
		}
		if sum.UpdatedAt, err = parseTime(asString(vals[3])); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}

	// Index entries can outlive their hash if a delete was interrupted.
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, index, stale...).Err()
	}

	sortSummaries(out)
	return out, nil
}

func (s *RedisStore) DeleteThread(ctx context.Context, ownerID, threadID string) (bool, error) {
	var del *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, s.threadKey(ownerID, threadID))
		pipe.ZRem(ctx, s.indexKey(ownerID), threadID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis delete thread: %w", err)
	}
	return del.Val() > 0, nil
}

// Ping checks Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp %q: %w", v, err)
	}
	return t, nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
