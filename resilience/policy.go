package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/kbukum/llmkit/errors"
)

// PolicyConfig assembles resilience components into a single policy.
// Every component is optional: a nil section skips that layer entirely.
// Adaptive and RateLimiter are mutually exclusive.
type PolicyConfig struct {
	// Name identifies this policy for metrics/logging.
	Name string `yaml:"name" mapstructure:"name"`
	// RateLimiter enables a fixed-rate token bucket.
	RateLimiter *RateLimiterConfig `yaml:"rate_limiter" mapstructure:"rate_limiter"`
	// Adaptive enables an outcome-driven token bucket instead of a fixed one.
	Adaptive *AdaptiveConfig `yaml:"adaptive" mapstructure:"adaptive"`
	// CircuitBreaker enables fast-fail when the dependency is unhealthy.
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	// Bulkhead bounds concurrent calls through the policy.
	Bulkhead *BulkheadConfig `yaml:"bulkhead" mapstructure:"bulkhead"`
	// Retry enables classified retries with exponential backoff.
	Retry *RetryConfig `yaml:"retry" mapstructure:"retry"`
	// WaitForTokens bounds how long a call may block for token admission.
	// 0 means fail fast with ErrRateLimited instead of waiting.
	WaitForTokens time.Duration `yaml:"wait_for_tokens" mapstructure:"wait_for_tokens"`
}

// ApplyDefaults names the policy; component defaults are applied by their
// own constructors.
func (c *PolicyConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
}

// Validate checks cross-component constraints.
func (c *PolicyConfig) Validate() error {
	if c.RateLimiter != nil && c.Adaptive != nil {
		return fmt.Errorf("policy %q: rate_limiter and adaptive are mutually exclusive", c.Name)
	}
	if c.WaitForTokens < 0 {
		return fmt.Errorf("policy %q: wait for tokens must not be negative (got %v)", c.Name, c.WaitForTokens)
	}
	return nil
}

// Valid reports whether the configuration passes validation.
func (c *PolicyConfig) Valid() bool {
	return c.Validate() == nil
}

// Policy layers rate limiting, circuit breaking, bulkheading, and retries
// around a single call site. The layers run outside-in:
//
//	circuit breaker gate -> token admission -> bulkhead -> retry -> operation
//
// so a fast-fail never consumes tokens, and a rate-limited call never burns
// a retry attempt or occupies a bulkhead slot.
type Policy struct {
	name          string
	limiter       *RateLimiter
	adaptive      *AdaptiveRateLimiter
	breaker       *CircuitBreaker
	bulkhead      *Bulkhead
	retry         *RetryConfig
	waitForTokens time.Duration
}

// NewPolicy builds the configured components.
func NewPolicy(config PolicyConfig) (*Policy, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	p := &Policy{
		name:          config.Name,
		waitForTokens: config.WaitForTokens,
	}

	if config.Adaptive != nil {
		cfg := *config.Adaptive
		if cfg.Name == "" {
			cfg.Name = config.Name
		}
		arl, err := NewAdaptiveRateLimiter(cfg)
		if err != nil {
			return nil, err
		}
		p.adaptive = arl
		p.limiter = arl.RateLimiter
	} else if config.RateLimiter != nil {
		cfg := *config.RateLimiter
		if cfg.Name == "" {
			cfg.Name = config.Name
		}
		rl, err := NewRateLimiter(cfg)
		if err != nil {
			return nil, err
		}
		p.limiter = rl
	}

	if config.CircuitBreaker != nil {
		cfg := *config.CircuitBreaker
		if cfg.Name == "" {
			cfg.Name = config.Name
		}
		cb, err := NewCircuitBreaker(cfg)
		if err != nil {
			return nil, err
		}
		p.breaker = cb
	}

	if config.Bulkhead != nil {
		cfg := *config.Bulkhead
		if cfg.Name == "" {
			cfg.Name = config.Name
		}
		bh, err := NewBulkhead(cfg)
		if err != nil {
			return nil, err
		}
		p.bulkhead = bh
	}

	if config.Retry != nil {
		cfg := *config.Retry
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, apperrors.Configuration(err.Error())
		}
		p.retry = &cfg
	}

	return p, nil
}

// Name returns the policy name.
func (p *Policy) Name() string { return p.name }

// Limiter returns the token bucket, or nil when rate limiting is disabled.
func (p *Policy) Limiter() *RateLimiter { return p.limiter }

// Adaptive returns the adaptive limiter, or nil when not configured.
func (p *Policy) Adaptive() *AdaptiveRateLimiter { return p.adaptive }

// Breaker returns the circuit breaker, or nil when not configured.
func (p *Policy) Breaker() *CircuitBreaker { return p.breaker }

// Bulkhead returns the bulkhead, or nil when not configured.
func (p *Policy) Bulkhead() *Bulkhead { return p.bulkhead }

// Call runs op through every configured layer. cost is the token cost of the
// request; calls with no rate limiter configured ignore it.
//
// Admission order is fixed: the circuit breaker is consulted before tokens
// are spent, so an open circuit never drains the bucket. When the bucket is
// empty the call blocks up to WaitForTokens; with WaitForTokens zero it
// fails immediately with ErrRateLimited.
func Call[T any](ctx context.Context, p *Policy, cost int, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cost < 1 {
		cost = 1
	}

	if p.breaker != nil && !p.breaker.Allow() {
		return zero, ErrCircuitOpen
	}

	if p.limiter != nil {
		if !p.limiter.AllowN(cost) {
			if p.waitForTokens <= 0 {
				return zero, ErrRateLimited
			}
			waitCtx, cancel := context.WithTimeout(ctx, p.waitForTokens)
			err := p.limiter.WaitN(waitCtx, cost)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return zero, ctx.Err()
				}
				return zero, ErrRateLimited
			}
		}
	}

	run := func() (T, error) {
		return attempt(p, ctx, op)
	}

	if p.bulkhead != nil {
		return ExecuteWithResult(ctx, p.bulkhead, func() (T, error) {
			return executeRetries(p, ctx, run)
		})
	}
	return executeRetries(p, ctx, run)
}

// CallCached is Call with a read-through cache in front of every other
// layer. A hit bypasses admission entirely; a successful call stores its
// result under key before returning.
func CallCached[T any](ctx context.Context, p *Policy, cache *Cache[T], key string, cost int, op func(ctx context.Context) (T, error)) (T, error) {
	if cache != nil && key != "" {
		if v, ok := cache.Get(key); ok {
			return v, nil
		}
	}

	result, err := Call(ctx, p, cost, op)
	if err != nil {
		return result, err
	}

	if cache != nil && key != "" {
		cache.Store(key, result)
	}
	return result, nil
}

// executeRetries wraps run in the retry executor when one is configured.
func executeRetries[T any](p *Policy, ctx context.Context, run func() (T, error)) (T, error) {
	if p.retry == nil {
		return run()
	}
	return Retry(ctx, *p.retry, run)
}

// attempt performs one call against the dependency, recording the outcome on
// the breaker and the adaptive limiter. The breaker was already consulted at
// admission, so each retry re-checks it: a circuit that opened mid-sequence
// stops the remaining attempts.
func attempt[T any](p *Policy, ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if p.breaker != nil && p.breaker.State() == StateOpen {
		return zero, ErrCircuitOpen
	}

	result, err := op(ctx)

	if p.breaker != nil {
		p.breaker.Record(err)
	}
	if p.adaptive != nil {
		switch {
		case err == nil:
			p.adaptive.RecordSuccess()
		case httpStatus(err) == 429:
			p.adaptive.RecordRateLimitHit()
		default:
			p.adaptive.RecordError()
		}
	}

	if err != nil {
		return zero, err
	}
	return result, nil
}
