// Package resilience provides patterns for building fault-tolerant clients.
//
// This package includes:
//   - RateLimiter: token bucket rate limiting with fractional refill
//   - AdaptiveRateLimiter: a bucket whose rate adapts to observed outcomes
//   - CircuitBreaker: fails fast when a dependency is unhealthy
//   - Bulkhead: bounds concurrent access to isolate failures
//   - Cache: TTL+LRU response caching
//   - Retry: classified retries with exponential backoff and jitter
//   - Policy: composes all of the above around a single call site
//
// Components can be used standalone or combined through a Policy:
//
//	policy, _ := resilience.NewPolicy(resilience.PolicyConfig{
//	    Name:           "anthropic",
//	    Adaptive:       &resilience.AdaptiveConfig{MinRate: 1, MaxRate: 50},
//	    CircuitBreaker: &resilience.CircuitBreakerConfig{FailureThreshold: 5},
//	    Retry:          &resilience.RetryConfig{MaxAttempts: 3},
//	})
//
//	resp, err := resilience.Call(ctx, policy, cost, func(ctx context.Context) (*Response, error) {
//	    return client.Complete(ctx, req)
//	})
package resilience
