package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blueberrycongee/thunderchat/pkg/types"
)

type threadKey struct {
	owner string
	id    string
}

// MemoryStore keeps threads in process memory. Records are copied on the
// way in and out so callers never share message slices with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[threadKey]*types.Thread
	now     Clock
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[threadKey]*types.Thread),
		now:     utcNow,
	}
}

// WithClock overrides the clock used to stamp new threads.
func (s *MemoryStore) WithClock(now Clock) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) FindThread(_ context.Context, ownerID, threadID string) (*types.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threads[threadKey{ownerID, threadID}].Clone(), nil
}

func (s *MemoryStore) CreateThread(_ context.Context, ownerID, threadID, title string) (*types.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := threadKey{ownerID, threadID}
	if existing, ok := s.threads[key]; ok {
		return existing.Clone(), nil
	}
	th := types.NewThread(ownerID, threadID, title, s.now())
	s.threads[key] = th
	return th.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, thread *types.Thread) error {
	if thread == nil || thread.OwnerID == "" || thread.ThreadID == "" {
		return fmt.Errorf("save: thread must have an owner and id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := threadKey{thread.OwnerID, thread.ThreadID}
	cp := thread.Clone()
	if existing, ok := s.threads[key]; ok {
		cp.Title = existing.Title
		cp.CreatedAt = existing.CreatedAt
	}
	s.threads[key] = cp
	return nil
}

func (s *MemoryStore) ListThreads(_ context.Context, ownerID string) ([]types.ThreadSummary, error) {
	s.mu.RLock()
	out := make([]types.ThreadSummary, 0)
	for key, th := range s.threads {
		if key.owner == ownerID {
			out = append(out, th.Summary())
		}
	}
	s.mu.RUnlock()

	sortSummaries(out)
	return out, nil
}

func (s *MemoryStore) DeleteThread(_ context.Context, ownerID, threadID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := threadKey{ownerID, threadID}
	if _, ok := s.threads[key]; !ok {
		return false, nil
	}
	delete(s.threads, key)
	return true, nil
}

// DeleteOwnersExcept removes every thread whose owner is not in keep and
// returns the number removed. Externally issued owners are skipped.
func (s *MemoryStore) DeleteOwnersExcept(_ context.Context, keep map[string]bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key := range s.threads {
		if !keep[key.owner] && !IsExternalOwner(key.owner) {
			delete(s.threads, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

// sortSummaries orders by UpdatedAt descending, breaking ties by thread ID
// so listings are stable.
func sortSummaries(out []types.ThreadSummary) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ThreadID < out[j].ThreadID
	})
}
