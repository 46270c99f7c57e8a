// Package types defines the conversation records shared by the chat
// orchestrator, thread stores and the HTTP layer.
package types

import (
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single entry in a thread. Messages are never edited after
// they are appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is an owner-scoped conversation. ThreadID is only unique within
// the scope of OwnerID.
type Thread struct {
	ThreadID  string    `json:"threadId"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewThread returns an empty thread whose title is fixed to title.
func NewThread(ownerID, threadID, title string, now time.Time) *Thread {
	return &Thread{
		ThreadID:  threadID,
		Title:     title,
		Messages:  []Message{},
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the end of the thread and bumps UpdatedAt.
func (t *Thread) Append(role Role, content string, at time.Time) {
	t.Messages = append(t.Messages, Message{Role: role, Content: content, Timestamp: at})
	if at.After(t.UpdatedAt) {
		t.UpdatedAt = at
	}
}

// Clone returns a deep copy so callers can mutate the result without
// touching a stored record.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Messages = make([]Message, len(t.Messages))
	copy(cp.Messages, t.Messages)
	return &cp
}

// Summary projects the thread onto its listing shape.
func (t *Thread) Summary() ThreadSummary {
	return ThreadSummary{
		ThreadID:     t.ThreadID,
		Title:        t.Title,
		MessageCount: len(t.Messages),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// ThreadSummary is the listing view of a thread.
type ThreadSummary struct {
	ThreadID     string    `json:"threadId"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
