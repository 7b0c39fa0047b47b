package claude

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kbukum/llmkit/llm"
)

const messageJSON = `{
	"id": "msg_test",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4-0",
	"content": [{"type": "text", "text": "hello there"}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 12, "output_tokens": 5}
}`

const errorJSON = `{"type": "error", "error": {"type": "api_error", "message": "something broke"}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{APIKey: "k"}
	cfg.ApplyDefaults()
	if cfg.Model == "" {
		t.Error("expected default model")
	}
	if cfg.Timeout == 0 {
		t.Error("expected default timeout")
	}
}

func TestClient_Complete(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(messageJSON))
	})

	resp, err := c.Complete(context.Background(), llm.CompletionRequest{
		Model:        "claude-sonnet-4-0",
		SystemPrompt: "be brief",
		Messages:     []llm.Message{llm.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/v1/messages" {
		t.Errorf("path = %q, want /v1/messages", gotPath)
	}
	if resp.Content != "hello there" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 5 || resp.Usage.TotalTokens != 17 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestClient_Complete_DefaultModel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(messageJSON))
	})

	if _, err := c.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	}); err != nil {
		t.Fatalf("request without model should fall back to config default: %v", err)
	}
}

func TestClient_Complete_RateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "13")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(errorJSON))
	})

	_, err := c.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	if !llm.IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if hint := llm.RetryAfterHint(err); hint != 13*time.Second {
		t.Errorf("retry-after hint = %v, want 13s", hint)
	}
}

func TestClient_Complete_ErrorStatuses(t *testing.T) {
	tests := []struct {
		status    int
		wantType  llm.ErrorType
		retryable bool
	}{
		{http.StatusBadRequest, llm.ErrorTypeInvalidRequest, false},
		{http.StatusUnauthorized, llm.ErrorTypeAuthentication, false},
		{http.StatusForbidden, llm.ErrorTypeAuthentication, false},
		{http.StatusNotFound, llm.ErrorTypeNotFound, false},
		{http.StatusRequestEntityTooLarge, llm.ErrorTypeRequestTooLarge, false},
		{http.StatusInternalServerError, llm.ErrorTypeProvider, true},
		{529, llm.ErrorTypeProvider, true},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			w.Write([]byte(errorJSON))
		})

		_, err := c.Complete(context.Background(), llm.CompletionRequest{
			Messages: []llm.Message{llm.UserMessage("hi")},
		})
		if err == nil {
			t.Errorf("status %d: expected error", tt.status)
			continue
		}
		llmErr, ok := err.(*llm.Error)
		if !ok {
			t.Errorf("status %d: expected *llm.Error, got %T", tt.status, err)
			continue
		}
		if llmErr.Type != tt.wantType {
			t.Errorf("status %d: type = %v, want %v", tt.status, llmErr.Type, tt.wantType)
		}
		if llmErr.Retryable != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, llmErr.Retryable, tt.retryable)
		}
		if llmErr.Provider != ProviderName {
			t.Errorf("status %d: provider = %q", tt.status, llmErr.Provider)
		}
	}
}

func TestClient_IsAvailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	if !c.IsAvailable(context.Background()) {
		t.Error("client with api key should report available")
	}
}

func TestFactory_Registered(t *testing.T) {
	found := false
	for _, name := range llm.Providers() {
		if name == ProviderName {
			found = true
		}
	}
	if !found {
		t.Fatalf("provider %q not registered", ProviderName)
	}

	c, err := llm.New(ProviderName, llm.ProviderConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if c.Name() != ProviderName {
		t.Errorf("Name() = %q", c.Name())
	}
}
