// Package core defines the fundamental interfaces and types shared by the
// load engine: the completion and probe contracts, message shapes, and the
// failure taxonomy.
package core

import "context"

// Message is one chat message sent to the completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessages wraps a prompt into a single user message.
func UserMessages(prompt string) []Message {
	return []Message{{Role: "user", Content: prompt}}
}

// CompletionRequest is one generation request.
type CompletionRequest struct {
	Messages  []Message
	MaxTokens int
}

// CompletionResult holds what the endpoint reported for one request.
type CompletionResult struct {
	LatencyMs    int
	InputTokens  int
	PrefixTokens int // cached prompt tokens, 0 if the provider does not report them
	OutputTokens int
	Text         string
}

// Completer performs completion requests over a shared session.
// Implementations must be safe for concurrent use and must not retry.
// Failures should be returned as *Failure so they can be classified.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// Prober measures transport latency to the endpoint in milliseconds.
type Prober interface {
	Probe(ctx context.Context) (int, error)
	Target() string
}
