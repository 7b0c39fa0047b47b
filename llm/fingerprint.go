package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// KeyFunc derives a cache key from a completion request.
type KeyFunc func(req CompletionRequest) string

// RequestKey fingerprints a request for caching: two requests with the same
// model, messages, system prompt, temperature, and max tokens produce the
// same key. Extra fields participate too, so provider-specific options
// never collide across values.
func RequestKey(req CompletionRequest) string {
	h := sha256.New()

	enc := json.NewEncoder(h)
	// Encode errors are impossible for these field types.
	_ = enc.Encode(struct {
		Model       string         `json:"model"`
		Messages    []Message      `json:"messages"`
		System      string         `json:"system"`
		Temperature float64        `json:"temperature"`
		MaxTokens   int            `json:"max_tokens"`
		Extra       map[string]any `json:"extra,omitempty"`
	}{
		Model:       req.Model,
		Messages:    req.Messages,
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Extra:       req.Extra,
	})

	return hex.EncodeToString(h.Sum(nil))
}
