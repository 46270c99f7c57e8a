// Package thunderchat is a multi-tenant chat backend as a Go library. It
// persists owner-scoped conversation threads and answers each user message
// through a prioritized chain of external LLM providers, degrading to a
// local arithmetic responder when every provider fails.
//
// Basic usage:
//
//	client, err := thunderchat.New(
//	    thunderchat.WithProvider(thunderchat.ProviderConfig{
//	        Name:   "gemini",
//	        Type:   "gemini",
//	        APIKey: os.Getenv("GOOGLE_API_KEY"),
//	    }),
//	    thunderchat.WithProvider(thunderchat.ProviderConfig{
//	        Name:   "openrouter",
//	        Type:   "openrouter",
//	        APIKey: os.Getenv("OPENROUTER_API_KEY"),
//	        Models: []string{"meta-llama/llama-3.1-8b-instruct:free"},
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.HandleTurn(ctx, userID, "thread-1", "what is 2+2*5")
package thunderchat

import (
	"github.com/blueberrycongee/thunderchat/internal/resilience"
	"github.com/blueberrycongee/thunderchat/internal/store"
	llmerrors "github.com/blueberrycongee/thunderchat/pkg/errors"
	"github.com/blueberrycongee/thunderchat/pkg/types"
)

// Version is the current version of thunderchat.
const Version = "1.0.0"

// Re-export the conversation records and the pieces callers configure.
type (
	// Thread is an owner-scoped conversation.
	Thread = types.Thread

	// Message is one entry of a thread.
	Message = types.Message

	// ThreadSummary is the listing view of a thread.
	ThreadSummary = types.ThreadSummary

	// TurnResult is the outcome of HandleTurn.
	TurnResult = types.TurnResult

	// ThreadStore persists threads.
	ThreadStore = store.ThreadStore

	// RetryPolicy bounds retries of a single provider entry.
	RetryPolicy = resilience.Policy

	// ProviderClient is anything that can send one message to one model.
	ProviderClient = resilience.Sender

	// ValidationError reports bad caller input.
	ValidationError = llmerrors.ValidationError
)

// Message roles.
const (
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant
)

// ErrNotFound is returned when a thread does not exist for its owner.
var ErrNotFound = llmerrors.ErrNotFound
