package testutil

import (
	"context"
	"sync"

	"github.com/kbukum/llmkit/llm"
)

// StubClient is a scriptable llm.Client for tests. All methods are
// safe for concurrent use.
type StubClient struct {
	name string

	mu          sync.Mutex
	calls       int
	unavailable bool
	responses   []stubResult
	fn          func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

type stubResult struct {
	resp *llm.CompletionResponse
	err  error
}

// NewStubClient creates a stub that echoes "ok" until scripted otherwise.
func NewStubClient(name string) *StubClient {
	return &StubClient{name: name}
}

// RespondWith queues a successful response with the given content.
// Queued results are consumed in order; when the queue is empty the
// stub falls back to a default "ok" response.
func (s *StubClient) RespondWith(content string) *StubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, stubResult{
		resp: &llm.CompletionResponse{Content: content},
	})
	return s
}

// FailWith queues an error result.
func (s *StubClient) FailWith(err error) *StubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, stubResult{err: err})
	return s
}

// CompleteFunc replaces the scripted queue with a custom handler.
func (s *StubClient) CompleteFunc(fn func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)) *StubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	return s
}

// SetUnavailable controls what IsAvailable reports.
func (s *StubClient) SetUnavailable(unavailable bool) *StubClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = unavailable
	return s
}

// Calls reports how many times Complete has been invoked.
func (s *StubClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Name implements llm.Client.
func (s *StubClient) Name() string { return s.name }

// IsAvailable implements llm.Client.
func (s *StubClient) IsAvailable(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.unavailable
}

// Complete implements llm.Client.
func (s *StubClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	s.calls++
	fn := s.fn
	var next *stubResult
	if fn == nil && len(s.responses) > 0 {
		next = &s.responses[0]
		s.responses = s.responses[1:]
	}
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if next != nil {
		return next.resp, next.err
	}
	return &llm.CompletionResponse{Content: "ok", Model: req.Model}, nil
}
