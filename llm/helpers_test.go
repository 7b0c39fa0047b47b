package llm

import (
	"context"
	"testing"
)

func TestComplete(t *testing.T) {
	stub := &stubClient{
		name: "stub",
		complete: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			if req.SystemPrompt != "be brief" {
				t.Errorf("system prompt = %q", req.SystemPrompt)
			}
			if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
				t.Errorf("messages = %+v", req.Messages)
			}
			return &CompletionResponse{Content: "hi there"}, nil
		},
	}

	got, err := Complete(context.Background(), stub, "be brief", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hi there" {
		t.Errorf("expected 'hi there', got %q", got)
	}
}

func TestCompleteStructured(t *testing.T) {
	stub := &stubClient{
		name: "stub",
		complete: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return &CompletionResponse{Content: "```json\n{\"answer\": 42}\n```"}, nil
		},
	}

	var result struct {
		Answer int `json:"answer"`
	}
	if err := CompleteStructured(context.Background(), stub, "sys", "q", &result); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer != 42 {
		t.Errorf("expected 42, got %d", result.Answer)
	}
}

func TestCompleteStructured_InvalidJSON(t *testing.T) {
	stub := &stubClient{
		name: "stub",
		complete: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return &CompletionResponse{Content: "I refuse to answer in JSON"}, nil
		},
	}

	var result map[string]any
	if err := CompleteStructured(context.Background(), stub, "sys", "q", &result); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: {\"a\":1} done", `{"a":1}`},
		{"  {\"a\": {\"b\": 2}}  ", `{"a": {"b": 2}}`},
		{"no json here", "no json here"},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
