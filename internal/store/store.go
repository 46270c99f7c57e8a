// Package store provides ThreadStore implementations. Every operation is
// scoped by owner: a thread ID alone never identifies a record.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/blueberrycongee/thunderchat/pkg/types"
)

// ThreadStore persists owner-scoped threads.
type ThreadStore interface {
	// FindThread returns the thread or nil when the owner has no such thread.
	FindThread(ctx context.Context, ownerID, threadID string) (*types.Thread, error)

	// CreateThread creates an empty thread with a fixed title. If the owner
	// already has the thread (a racing turn created it), the existing record
	// is returned unchanged.
	CreateThread(ctx context.Context, ownerID, threadID, title string) (*types.Thread, error)

	// Save writes the thread's messages and UpdatedAt. Concurrent saves of
	// the same thread are last-write-wins. The stored title is never changed.
	Save(ctx context.Context, thread *types.Thread) error

	// ListThreads returns the owner's threads, most recently updated first.
	ListThreads(ctx context.Context, ownerID string) ([]types.ThreadSummary, error)

	// DeleteThread removes the thread entirely and reports whether it existed.
	DeleteThread(ctx context.Context, ownerID, threadID string) (bool, error)

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Clock returns the current time; stores use it to stamp new threads.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// IsExternalOwner reports whether owner was issued by an external identity
// provider ("oidc|issuer|subject"). Such owners have no local account, so
// orphan pruning leaves their threads alone.
func IsExternalOwner(owner string) bool {
	return strings.Contains(owner, "|")
}
