package types

// TurnResult is the outcome of a single chat turn. Reply is never empty
// for a validated turn.
type TurnResult struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"threadId"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Fallback is set when the reply came from the local responder.
	Fallback bool `json:"fallback"`
	// Diagnostic carries the last provider failure on the fallback path.
	Diagnostic string `json:"diagnostic,omitempty"`
}
