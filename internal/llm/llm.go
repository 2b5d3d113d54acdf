// Package llm wraps text generation backends behind a request/response
// boundary.
package llm

import "context"

// Completion is the result of a single prompt.
type Completion struct {
	Text string
}

// Completer answers one prompt with no streaming.
type Completer interface {
	GenerateCompletion(ctx context.Context, prompt string) (Completion, error)
}

// Conversation is a multi-turn chat held by the backend client.
// A failed Send leaves the conversation as it was.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
}

// ChatStarter creates conversations.
type ChatStarter interface {
	StartChat(ctx context.Context, systemInstruction string) (Conversation, error)
}
