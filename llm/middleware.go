package llm

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/llmkit/logger"
	"github.com/kbukum/llmkit/observability"
	"github.com/kbukum/llmkit/util"
)

// Middleware provides hooks around Client.Complete calls for cross-cutting
// concerns: logging, rate-limit gating, metrics.
type Middleware interface {
	// BeforeRequest runs before the provider call. It may modify the request
	// in place, thread values through the returned context, or abort the
	// call by returning an error.
	BeforeRequest(ctx context.Context, req *CompletionRequest) (context.Context, error)

	// AfterResponse runs after a successful provider call.
	AfterResponse(ctx context.Context, req *CompletionRequest, resp *CompletionResponse) error

	// OnError runs when the provider call fails. The returned error replaces
	// the original.
	OnError(ctx context.Context, req *CompletionRequest, err error) error
}

type contextKey string

const (
	ctxKeyProvider  contextKey = "llm.provider"
	ctxKeyRequestID contextKey = "llm.request_id"
	ctxKeyStart     contextKey = "llm.start"
	ctxKeySpan      contextKey = "llm.span"
)

// Wrap decorates a client with middleware. Hooks run in order for
// BeforeRequest and OnError, and in reverse order for AfterResponse.
func Wrap(client Client, middleware ...Middleware) Client {
	if len(middleware) == 0 {
		return client
	}
	return &wrappedClient{client: client, middleware: middleware}
}

type wrappedClient struct {
	client     Client
	middleware []Middleware
}

func (w *wrappedClient) Name() string { return w.client.Name() }

func (w *wrappedClient) IsAvailable(ctx context.Context) bool {
	return w.client.IsAvailable(ctx)
}

func (w *wrappedClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx = context.WithValue(ctx, ctxKeyProvider, w.client.Name())

	for _, mw := range w.middleware {
		var err error
		ctx, err = mw.BeforeRequest(ctx, &req)
		if err != nil {
			return nil, err
		}
	}

	resp, err := w.client.Complete(ctx, req)
	if err != nil {
		for _, mw := range w.middleware {
			err = mw.OnError(ctx, &req, err)
		}
		return nil, err
	}

	for i := len(w.middleware) - 1; i >= 0; i-- {
		if err := w.middleware[i].AfterResponse(ctx, &req, resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// LoggingMiddleware logs each call with a generated request ID, the
// provider, model, duration, and token usage.
type LoggingMiddleware struct {
	Logger *logger.Logger
}

// NewLoggingMiddleware creates a logging middleware. A nil logger uses the
// global one.
func NewLoggingMiddleware(log *logger.Logger) *LoggingMiddleware {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &LoggingMiddleware{Logger: log}
}

func (m *LoggingMiddleware) BeforeRequest(ctx context.Context, req *CompletionRequest) (context.Context, error) {
	requestID := uuid.NewString()
	ctx = context.WithValue(ctx, ctxKeyRequestID, requestID)
	ctx = context.WithValue(ctx, ctxKeyStart, time.Now())

	fields := logger.Fields(
		logger.FieldRequestID, requestID,
		logger.FieldProvider, providerFromContext(ctx),
		logger.FieldModel, req.Model,
		"messages", len(req.Messages),
	)
	if preview := messagePreview(req); preview != "" {
		fields["preview"] = preview
	}
	m.Logger.Debug("llm request", fields)
	return ctx, nil
}

// previewLimit bounds the logged prompt preview in runes.
const previewLimit = 80

// messagePreview returns a truncated copy of the newest message so log
// lines never carry full prompt payloads.
func messagePreview(req *CompletionRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return util.Truncate(req.Messages[len(req.Messages)-1].Content, previewLimit)
}

func (m *LoggingMiddleware) AfterResponse(ctx context.Context, req *CompletionRequest, resp *CompletionResponse) error {
	m.Logger.Info("llm response", logger.Fields(
		logger.FieldRequestID, requestIDFromContext(ctx),
		logger.FieldProvider, providerFromContext(ctx),
		logger.FieldModel, resp.Model,
		logger.FieldDuration, elapsedMillis(ctx),
		logger.FieldTokens, resp.Usage.TotalTokens,
	))
	return nil
}

func (m *LoggingMiddleware) OnError(ctx context.Context, req *CompletionRequest, err error) error {
	m.Logger.Warn("llm request failed", logger.Fields(
		logger.FieldRequestID, requestIDFromContext(ctx),
		logger.FieldProvider, providerFromContext(ctx),
		logger.FieldModel, req.Model,
		logger.FieldDuration, elapsedMillis(ctx),
		logger.FieldError, err.Error(),
	))
	return err
}

func providerFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyProvider).(string)
	return s
}

func requestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRequestID).(string)
	return s
}

func elapsedMillis(ctx context.Context) int64 {
	start, ok := ctx.Value(ctxKeyStart).(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start).Milliseconds()
}

// ValidationMiddleware rejects malformed requests before they reach the
// provider. Opt-in: providers tolerate sparse requests by applying their
// own defaults, so only callers who want early structural checks wire it.
type ValidationMiddleware struct{}

func (ValidationMiddleware) BeforeRequest(ctx context.Context, req *CompletionRequest) (context.Context, error) {
	if err := req.Validate(); err != nil {
		return ctx, err
	}
	return ctx, nil
}

func (ValidationMiddleware) AfterResponse(ctx context.Context, req *CompletionRequest, resp *CompletionResponse) error {
	return nil
}

func (ValidationMiddleware) OnError(ctx context.Context, req *CompletionRequest, err error) error {
	return err
}

// MetricsMiddleware records the generic request instruments and a span for
// each call through an observability.OperationContext.
type MetricsMiddleware struct {
	Service string
	Metrics *observability.Metrics
}

// NewMetricsMiddleware creates a metrics middleware. A nil metrics set
// still produces spans; metric recording is skipped.
func NewMetricsMiddleware(service string, metrics *observability.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{Service: service, Metrics: metrics}
}

func (m *MetricsMiddleware) BeforeRequest(ctx context.Context, req *CompletionRequest) (context.Context, error) {
	oc := observability.NewOperationContext(
		m.Service, "llm.complete", requestIDFromContext(ctx), providerFromContext(ctx), m.Metrics)
	ctx = observability.WithOperationContext(ctx, oc)
	ctx, span := oc.StartSpanForOperation(ctx, observability.SpanLLMCall)
	return context.WithValue(ctx, ctxKeySpan, span), nil
}

func (m *MetricsMiddleware) AfterResponse(ctx context.Context, req *CompletionRequest, resp *CompletionResponse) error {
	m.end(ctx, "ok", nil)
	return nil
}

func (m *MetricsMiddleware) OnError(ctx context.Context, req *CompletionRequest, err error) error {
	m.end(ctx, "error", err)
	return err
}

func (m *MetricsMiddleware) end(ctx context.Context, status string, err error) {
	oc := observability.OperationContextFromContext(ctx)
	span, ok := ctx.Value(ctxKeySpan).(trace.Span)
	if oc == nil || !ok {
		return
	}
	oc.EndOperation(ctx, span, status, err)
}

// RetryAfterMiddleware holds calls back after a provider rate limit.
// When a 429 arrives it closes a gate for the provider-suggested duration,
// falling back to exponential backoff when the provider sent no hint.
// Subsequent calls wait for the gate to open before reaching the provider.
type RetryAfterMiddleware struct {
	mu        sync.Mutex
	notBefore time.Time
	backoff   *backoff.ExponentialBackOff
}

// NewRetryAfterMiddleware creates a rate-limit gate with backoff defaults
// suited to provider rate limits (1s initial, 1m cap, no elapsed cutoff).
func NewRetryAfterMiddleware() *RetryAfterMiddleware {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	b.Reset()
	return &RetryAfterMiddleware{backoff: b}
}

func (m *RetryAfterMiddleware) BeforeRequest(ctx context.Context, req *CompletionRequest) (context.Context, error) {
	m.mu.Lock()
	wait := time.Until(m.notBefore)
	m.mu.Unlock()

	if wait <= 0 {
		return ctx, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return ctx, nil
	case <-ctx.Done():
		return ctx, ctx.Err()
	}
}

func (m *RetryAfterMiddleware) AfterResponse(ctx context.Context, req *CompletionRequest, resp *CompletionResponse) error {
	m.mu.Lock()
	m.backoff.Reset()
	m.notBefore = time.Time{}
	m.mu.Unlock()
	return nil
}

func (m *RetryAfterMiddleware) OnError(ctx context.Context, req *CompletionRequest, err error) error {
	if !IsRateLimit(err) {
		return err
	}

	delay := RetryAfterHint(err)
	m.mu.Lock()
	if delay <= 0 {
		delay = m.backoff.NextBackOff()
	}
	m.notBefore = time.Now().Add(delay)
	m.mu.Unlock()
	return err
}

// GateClosedFor reports how long the rate-limit gate stays closed.
// Zero means calls pass through immediately.
func (m *RetryAfterMiddleware) GateClosedFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := time.Until(m.notBefore); d > 0 {
		return d
	}
	return 0
}
