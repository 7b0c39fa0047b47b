package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/llmkit/resilience"
)

// ResilienceMetrics holds instruments for the resilience layer: rate limit
// rejections, circuit breaker transitions, retries, and cache outcomes.
type ResilienceMetrics struct {
	rateLimitHits  metric.Int64Counter
	breakerTrips   metric.Int64Counter
	retryAttempts  metric.Int64Counter
	cacheLookups   metric.Int64Counter
	callDuration   metric.Float64Histogram
	tokensConsumed metric.Float64Counter
}

// NewResilienceMetrics creates the resilience instruments on the given meter.
func NewResilienceMetrics(meter metric.Meter) (*ResilienceMetrics, error) {
	rateLimitHits, err := meter.Int64Counter("resilience.rate_limit.hits",
		metric.WithDescription("Requests rejected by the rate limiter"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resilience.rate_limit.hits counter: %w", err)
	}

	breakerTrips, err := meter.Int64Counter("resilience.circuit_breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resilience.circuit_breaker.transitions counter: %w", err)
	}

	retryAttempts, err := meter.Int64Counter("resilience.retry.attempts",
		metric.WithDescription("Retry attempts after a failed call"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resilience.retry.attempts counter: %w", err)
	}

	cacheLookups, err := meter.Int64Counter("resilience.cache.lookups",
		metric.WithDescription("Cache lookups by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resilience.cache.lookups counter: %w", err)
	}

	callDuration, err := meter.Float64Histogram("llm.call.duration",
		metric.WithDescription("Duration of provider calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating llm.call.duration histogram: %w", err)
	}

	tokensConsumed, err := meter.Float64Counter("resilience.tokens.consumed",
		metric.WithDescription("Rate limiter tokens consumed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resilience.tokens.consumed counter: %w", err)
	}

	return &ResilienceMetrics{
		rateLimitHits:  rateLimitHits,
		breakerTrips:   breakerTrips,
		retryAttempts:  retryAttempts,
		cacheLookups:   cacheLookups,
		callDuration:   callDuration,
		tokensConsumed: tokensConsumed,
	}, nil
}

// OnLimit returns a callback for RateLimiterConfig.OnLimit that counts
// rejections per limiter.
func (m *ResilienceMetrics) OnLimit(ctx context.Context) func(name string) {
	return func(name string) {
		m.rateLimitHits.Add(ctx, 1, metric.WithAttributes(
			attribute.String("limiter", name),
		))
	}
}

// OnStateChange returns a callback for CircuitBreakerConfig.OnStateChange
// that counts transitions per breaker and direction.
func (m *ResilienceMetrics) OnStateChange(ctx context.Context) func(name string, from, to resilience.State) {
	return func(name string, from, to resilience.State) {
		m.breakerTrips.Add(ctx, 1, metric.WithAttributes(
			attribute.String("breaker", name),
			attribute.String("from", from.String()),
			attribute.String("to", to.String()),
		))
	}
}

// OnRetry returns a callback for RetryConfig.OnRetry that counts attempts.
func (m *ResilienceMetrics) OnRetry(ctx context.Context, name string) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		m.retryAttempts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", name),
			attribute.Int("attempt", attempt),
		))
	}
}

// RecordCacheLookup records a cache hit or miss.
func (m *ResilienceMetrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache", cache),
		attribute.String("outcome", outcome),
	))
}

// RecordTokens records rate limiter token consumption for a provider.
func (m *ResilienceMetrics) RecordTokens(ctx context.Context, provider string, tokens float64) {
	m.tokensConsumed.Add(ctx, tokens, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// StartCall opens an llm.call span annotated with provider and model.
// The returned finish function records the error, call duration, and closes
// the span.
func (m *ResilienceMetrics) StartCall(ctx context.Context, provider, model string) (context.Context, func(err error)) {
	ctx, span := StartSpan(ctx, SpanLLMCall, trace.WithAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrModel, model),
	))
	start := time.Now()

	return ctx, func(err error) {
		duration := time.Since(start)
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
		}
		span.SetAttributes(
			attribute.String(AttrStatus, status),
			attribute.Int64(AttrDurationMs, duration.Milliseconds()),
		)
		span.End()

		m.callDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String(AttrProvider, provider),
			attribute.String(AttrModel, model),
			attribute.String(AttrStatus, status),
		))
	}
}
