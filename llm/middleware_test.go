package llm

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/kbukum/llmkit/logger"
	"github.com/kbukum/llmkit/observability"
)

// recordingMiddleware tracks hook invocation order.
type recordingMiddleware struct {
	label string
	log   *[]string
}

func (m *recordingMiddleware) BeforeRequest(ctx context.Context, req *CompletionRequest) (context.Context, error) {
	*m.log = append(*m.log, "before:"+m.label)
	return ctx, nil
}

func (m *recordingMiddleware) AfterResponse(ctx context.Context, req *CompletionRequest, resp *CompletionResponse) error {
	*m.log = append(*m.log, "after:"+m.label)
	return nil
}

func (m *recordingMiddleware) OnError(ctx context.Context, req *CompletionRequest, err error) error {
	*m.log = append(*m.log, "error:"+m.label)
	return err
}

func TestWrap_Order(t *testing.T) {
	var calls []string
	stub := &stubClient{name: "stub", available: true}

	wrapped := Wrap(stub,
		&recordingMiddleware{label: "a", log: &calls},
		&recordingMiddleware{label: "b", log: &calls},
	)

	_, err := wrapped.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"before:a", "before:b", "after:b", "after:a"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
}

func TestWrap_OnErrorChain(t *testing.T) {
	var calls []string
	stub := &stubClient{
		name: "stub",
		complete: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return nil, fmt.Errorf("boom")
		},
	}

	wrapped := Wrap(stub, &recordingMiddleware{label: "a", log: &calls})

	_, err := wrapped.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(calls) != 2 || calls[1] != "error:a" {
		t.Errorf("calls = %v, want [before:a error:a]", calls)
	}
}

func TestWrap_NoMiddlewareReturnsClient(t *testing.T) {
	stub := &stubClient{name: "stub"}
	if Wrap(stub) != Client(stub) {
		t.Error("Wrap with no middleware should return the client unchanged")
	}
}

func TestWrap_DelegatesNameAndAvailability(t *testing.T) {
	stub := &stubClient{name: "stub", available: true}
	var calls []string
	wrapped := Wrap(stub, &recordingMiddleware{label: "a", log: &calls})

	if wrapped.Name() != "stub" {
		t.Errorf("Name() = %q", wrapped.Name())
	}
	if !wrapped.IsAvailable(context.Background()) {
		t.Error("IsAvailable should delegate to the wrapped client")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	stub := &stubClient{name: "stub"}
	wrapped := Wrap(stub, &LoggingMiddleware{Logger: logger.Nop()})

	resp, err := wrapped.Complete(context.Background(), CompletionRequest{Model: "m1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil {
		t.Fatal("expected response")
	}
}

func TestMessagePreview(t *testing.T) {
	if got := messagePreview(&CompletionRequest{}); got != "" {
		t.Errorf("empty request preview = %q, want empty", got)
	}

	long := strings.Repeat("a", 200)
	req := &CompletionRequest{Messages: []Message{UserMessage("first"), UserMessage(long)}}
	got := messagePreview(req)
	if len([]rune(got)) > previewLimit {
		t.Errorf("preview length = %d, want at most %d", len([]rune(got)), previewLimit)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated preview should end with ellipsis, got %q", got)
	}
	if !strings.HasPrefix(got, "a") {
		t.Errorf("preview should come from the newest message, got %q", got)
	}
}

func TestValidationMiddleware(t *testing.T) {
	stub := &stubClient{name: "stub"}
	wrapped := Wrap(stub, ValidationMiddleware{})

	_, err := wrapped.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected error for request without messages")
	}
	if stub.calls != 0 {
		t.Error("invalid request must not reach the provider")
	}

	_, err = wrapped.Complete(context.Background(), CompletionRequest{
		Messages: []Message{UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = wrapped.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "narrator", Content: "x"}},
	})
	if err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestMetricsMiddleware(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	metrics, err := observability.NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	stub := &stubClient{name: "stub", available: true}
	wrapped := Wrap(stub, NewMetricsMiddleware("llm-gateway", metrics))

	if _, err := wrapped.Complete(context.Background(), CompletionRequest{Model: "m1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The error path must close the span without panicking too.
	stub.complete = func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
		return nil, fmt.Errorf("boom")
	}
	if _, err := wrapped.Complete(context.Background(), CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetryAfterMiddleware_GateClosesOnRateLimit(t *testing.T) {
	retryAfter := 50 * time.Millisecond
	failures := 1
	stub := &stubClient{
		name: "stub",
		complete: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			if failures > 0 {
				failures--
				return nil, NewRateLimitError("stub", "429", &retryAfter, nil)
			}
			return &CompletionResponse{Content: "ok"}, nil
		},
	}

	mw := NewRetryAfterMiddleware()
	wrapped := Wrap(stub, mw)

	_, err := wrapped.Complete(context.Background(), CompletionRequest{})
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	if mw.GateClosedFor() <= 0 {
		t.Fatal("gate should be closed after a 429")
	}

	// Second call waits for the gate and then succeeds.
	start := time.Now()
	resp, err := wrapped.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected gated wait of ~50ms, elapsed %v", elapsed)
	}

	// Success reopens the gate.
	if mw.GateClosedFor() != 0 {
		t.Error("gate should be open after a success")
	}
}

func TestRetryAfterMiddleware_BackoffWithoutHint(t *testing.T) {
	stub := &stubClient{
		name: "stub",
		complete: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return nil, NewRateLimitError("stub", "429", nil, nil)
		},
	}

	mw := NewRetryAfterMiddleware()
	wrapped := Wrap(stub, mw)

	_, err := wrapped.Complete(context.Background(), CompletionRequest{})
	if !IsRateLimit(err) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if mw.GateClosedFor() <= 0 {
		t.Error("gate should close on exponential backoff when no hint is given")
	}
}

func TestRetryAfterMiddleware_ContextCanceledWhileGated(t *testing.T) {
	retryAfter := 5 * time.Second
	stub := &stubClient{
		name: "stub",
		complete: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return nil, NewRateLimitError("stub", "429", &retryAfter, nil)
		},
	}

	mw := NewRetryAfterMiddleware()
	wrapped := Wrap(stub, mw)

	wrapped.Complete(context.Background(), CompletionRequest{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := wrapped.Complete(ctx, CompletionRequest{})
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded while gated, got %v", err)
	}
}

func TestRetryAfterMiddleware_NonRateLimitErrorIgnored(t *testing.T) {
	stub := &stubClient{
		name: "stub",
		complete: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return nil, NewProviderError("stub", "500", 500, nil)
		},
	}

	mw := NewRetryAfterMiddleware()
	wrapped := Wrap(stub, mw)

	wrapped.Complete(context.Background(), CompletionRequest{})
	if mw.GateClosedFor() != 0 {
		t.Error("gate should stay open for non-rate-limit errors")
	}
}
