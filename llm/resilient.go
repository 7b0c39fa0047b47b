package llm

import (
	"context"
	"errors"

	apperrors "github.com/kbukum/llmkit/errors"
	"github.com/kbukum/llmkit/observability"
	"github.com/kbukum/llmkit/resilience"
)

// ResilientConfig configures the resilience wrapper around a client.
type ResilientConfig struct {
	// Policy assembles the rate limiter, circuit breaker, bulkhead, and
	// retry layers. An empty name defaults to the client name.
	Policy resilience.PolicyConfig
	// Cache enables response caching. Nil disables it.
	Cache *resilience.CacheConfig
	// Key derives cache keys. Defaults to RequestKey.
	Key KeyFunc
	// Cost estimates token cost per request. Defaults to RequestCost.
	Cost CostFunc
	// Metrics instruments each call with a span, duration histogram, and
	// token counter. Nil disables instrumentation.
	Metrics *observability.ResilienceMetrics
}

// ResilientClient wraps a Client with a resilience.Policy and an optional
// response cache. Admission runs outside-in: cache lookup, circuit breaker
// gate, token admission, bulkhead, retries, provider call. Sentinel
// admission failures surface as AppErrors so callers see one error shape.
type ResilientClient struct {
	client  Client
	policy  *resilience.Policy
	cache   *resilience.Cache[*CompletionResponse]
	key     KeyFunc
	cost    CostFunc
	metrics *observability.ResilienceMetrics
}

// NewResilientClient wraps client with the configured resilience layers.
func NewResilientClient(client Client, cfg ResilientConfig) (*ResilientClient, error) {
	if cfg.Policy.Name == "" {
		cfg.Policy.Name = client.Name()
	}

	policy, err := resilience.NewPolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	r := &ResilientClient{
		client:  client,
		policy:  policy,
		key:     cfg.Key,
		cost:    cfg.Cost,
		metrics: cfg.Metrics,
	}
	if r.key == nil {
		r.key = RequestKey
	}
	if r.cost == nil {
		r.cost = RequestCost
	}

	if cfg.Cache != nil {
		cacheCfg := *cfg.Cache
		if cacheCfg.Name == "" {
			cacheCfg.Name = client.Name()
		}
		cache, err := resilience.NewCache[*CompletionResponse](cacheCfg)
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}

	return r, nil
}

// Name returns the wrapped client's name.
func (r *ResilientClient) Name() string { return r.client.Name() }

// IsAvailable reports the wrapped client's availability. An open circuit
// counts as unavailable.
func (r *ResilientClient) IsAvailable(ctx context.Context) bool {
	if b := r.policy.Breaker(); b != nil && b.State() == resilience.StateOpen {
		return false
	}
	return r.client.IsAvailable(ctx)
}

// Policy exposes the underlying policy for metrics and state inspection.
func (r *ResilientClient) Policy() *resilience.Policy { return r.policy }

// Cache exposes the response cache, or nil when caching is disabled.
func (r *ResilientClient) Cache() *resilience.Cache[*CompletionResponse] { return r.cache }

// Complete runs the request through every resilience layer. Errors from the
// provider pass through unchanged; admission sentinels are wrapped into
// AppErrors naming the refusing component.
func (r *ResilientClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	op := func(ctx context.Context) (*CompletionResponse, error) {
		return r.client.Complete(ctx, req)
	}
	cost := r.cost(req)

	var finish func(error)
	if r.metrics != nil {
		ctx, finish = r.metrics.StartCall(ctx, r.client.Name(), req.Model)
		r.metrics.RecordTokens(ctx, r.client.Name(), float64(cost))
	}

	var resp *CompletionResponse
	var err error
	if r.cache != nil {
		resp, err = resilience.CallCached(ctx, r.policy, r.cache, r.key(req), cost, op)
	} else {
		resp, err = resilience.Call(ctx, r.policy, cost, op)
	}
	if err != nil {
		err = r.wrapSentinel(err)
	}
	if finish != nil {
		finish(err)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// wrapSentinel converts resilience sentinels into AppErrors. Provider and
// transport errors pass through for the caller to inspect.
func (r *ResilientClient) wrapSentinel(err error) error {
	name := r.policy.Name()
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return apperrors.CircuitOpen(name).WithCause(err)
	case errors.Is(err, resilience.ErrRateLimited):
		return apperrors.RateLimited(name).WithCause(err)
	case errors.Is(err, resilience.ErrBulkheadFull), errors.Is(err, resilience.ErrBulkheadTimeout):
		return apperrors.BulkheadFull(name).WithCause(err)
	default:
		return err
	}
}
