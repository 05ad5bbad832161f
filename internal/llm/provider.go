// Package llm provides the chat-completion port used for query
// reformulation and answer generation, with an OpenAI-compatible adapter.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrNoProvider is returned when no generation backend is configured
	ErrNoProvider = errors.New("no LLM provider configured")
	// ErrEmptyCompletion is returned when the model answers with no content
	ErrEmptyCompletion = errors.New("empty completion")
)

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}
