// Package llm provides a provider-neutral client surface for LLM
// completions, with vendor packages for Claude, OpenAI, Gemini, Ollama,
// and Hugging Face.
//
// The package provides:
//   - Universal types: [CompletionRequest], [CompletionResponse], [Message], [Usage]
//   - [Client] interface implemented by every vendor package
//   - Vendor-neutral [Error] with typed categories and retry-after hints
//   - [Register]/[New] factory registry for config-driven provider selection
//   - [Wrap] middleware chaining: [LoggingMiddleware], [RetryAfterMiddleware]
//   - [ResilientClient]: rate limiting, circuit breaking, caching, and
//     retries composed around any Client via the resilience package
//   - Convenience helpers: [Complete], [CompleteStructured]
//
// # Usage
//
// Import a vendor package for side-effect registration, then construct a
// client by name:
//
//	import (
//	    "github.com/kbukum/llmkit/llm"
//	    _ "github.com/kbukum/llmkit/llm/claude" // registers "claude"
//	)
//
//	client, err := llm.New("claude", llm.ProviderConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-sonnet-4-5",
//	})
//
//	resp, err := client.Complete(ctx, llm.CompletionRequest{
//	    Messages: []llm.Message{llm.UserMessage("Hello!")},
//	})
//
// # Resilience
//
// Wrap any client to add admission control and caching:
//
//	rc, err := llm.NewResilientClient(client, llm.ResilientConfig{
//	    Policy: resilience.PolicyConfig{
//	        RateLimiter:    &resilience.RateLimiterConfig{Capacity: 100, RefillRate: 10},
//	        CircuitBreaker: &resilience.CircuitBreakerConfig{FailureThreshold: 5},
//	        Retry:          &resilience.RetryConfig{MaxAttempts: 3},
//	    },
//	    Cache: &resilience.CacheConfig{MaxEntries: 500, TTL: 5 * time.Minute},
//	})
package llm
