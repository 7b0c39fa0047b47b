package llm

import (
	"fmt"

	"github.com/kbukum/llmkit/validation"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role" yaml:"role"` // "system", "user", "assistant"
	Content string `json:"content" yaml:"content"`
}

// CompletionRequest is the universal input for all LLM providers.
type CompletionRequest struct {
	// Model overrides the provider's default model.
	Model string `json:"model,omitempty" yaml:"model"`
	// Messages is the conversation history.
	Messages []Message `json:"messages" yaml:"messages"`
	// SystemPrompt is prepended as a system message.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt"`
	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature"`
	// MaxTokens limits the response length. 0 means provider default.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens"`
	// Extra holds provider-specific fields that don't fit the universal schema.
	Extra map[string]any `json:"extra,omitempty" yaml:"extra"`
}

// Validate checks that the request is structurally sound. Providers apply
// their own defaults for missing model and token settings, so only shapes
// no provider can serve are rejected.
func (r CompletionRequest) Validate() error {
	v := validation.New().
		Custom(len(r.Messages) > 0, "messages", "at least one message is required").
		Min("max_tokens", r.MaxTokens, 0).
		Custom(r.Temperature >= 0 && r.Temperature <= 2, "temperature", "must be between 0 and 2")
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			v.AddError(fmt.Sprintf("messages[%d].role", i), "must be system, user, or assistant")
		}
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// CompletionResponse is the universal output from all LLM providers.
type CompletionResponse struct {
	// Content is the generated text.
	Content string `json:"content"`
	// Model is the model that produced the response.
	Model string `json:"model"`
	// Usage reports token consumption.
	Usage Usage `json:"usage"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UserMessage builds a user-role message from a prompt.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}
