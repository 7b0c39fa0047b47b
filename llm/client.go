package llm

import "context"

// Client is the interface LLM providers implement.
type Client interface {
	// Name identifies the provider (e.g., "claude", "openai").
	Name() string

	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable reports whether the provider is reachable and configured.
	IsAvailable(ctx context.Context) bool
}
