package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	apperrors "github.com/kbukum/llmkit/errors"
)

// Common rate limiter errors.
var (
	ErrRateLimited = errors.New("rate limit exceeded")
)

// RateLimiterConfig configures a token bucket rate limiter.
type RateLimiterConfig struct {
	// Name identifies this rate limiter for metrics/logging.
	Name string `yaml:"name" mapstructure:"name"`
	// Capacity is the maximum number of tokens the bucket can hold.
	Capacity float64 `yaml:"capacity" mapstructure:"capacity"`
	// RefillRate is the number of tokens added per second.
	RefillRate float64 `yaml:"refill_rate" mapstructure:"refill_rate"`
	// InitialTokens is the token count at construction. Nil means start full.
	InitialTokens *float64 `yaml:"initial_tokens" mapstructure:"initial_tokens"`
	// OnLimit is called when a request is rate limited.
	OnLimit func(name string) `yaml:"-" mapstructure:"-"`
}

// DefaultRateLimiterConfig returns sensible defaults.
func DefaultRateLimiterConfig(name string) RateLimiterConfig {
	return RateLimiterConfig{
		Name:       name,
		Capacity:   20,
		RefillRate: 10.0,
	}
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *RateLimiterConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Capacity == 0 {
		c.Capacity = 20
	}
	if c.RefillRate == 0 {
		c.RefillRate = 10.0
	}
}

// Validate checks that the configuration is usable.
// A limiter must never be constructed from an invalid config.
func (c *RateLimiterConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("rate limiter %q: capacity must be positive (got %v)", c.Name, c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("rate limiter %q: refill rate must be positive (got %v)", c.Name, c.RefillRate)
	}
	if c.InitialTokens != nil {
		if *c.InitialTokens < 0 || *c.InitialTokens > c.Capacity {
			return fmt.Errorf("rate limiter %q: initial tokens must be within [0, %v] (got %v)",
				c.Name, c.Capacity, *c.InitialTokens)
		}
	}
	return nil
}

// Valid reports whether the configuration passes validation.
func (c *RateLimiterConfig) Valid() bool {
	return c.Validate() == nil
}

// RateLimiterMetrics is a point-in-time snapshot of limiter counters.
type RateLimiterMetrics struct {
	RequestsAllowed     uint64
	RequestsBlocked     uint64
	TotalTokensConsumed float64
	// Throughput is allowed requests per second over the limiter's lifetime.
	Throughput float64
}

// RateLimiter implements a token bucket rate limiter.
// Tokens refill lazily: every observation computes elapsed-time refill
// before acting, so refill, check, and consume form one critical section.
type RateLimiter struct {
	mu     sync.Mutex
	config RateLimiterConfig

	tokens     float64
	lastRefill time.Time
	createdAt  time.Time

	requestsAllowed uint64
	requestsBlocked uint64
	tokensConsumed  float64

	watchers []func(RateLimiterConfig)
}

// NewRateLimiter creates a new rate limiter.
// Returns a configuration error if the config is invalid.
func NewRateLimiter(config RateLimiterConfig) (*RateLimiter, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	tokens := config.Capacity
	if config.InitialTokens != nil {
		tokens = *config.InitialTokens
	}

	now := time.Now()
	return &RateLimiter{
		config:     config,
		tokens:     tokens,
		lastRefill: now,
		createdAt:  now,
	}, nil
}

// Allow checks if a request costing one token is allowed without blocking.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN checks if a request costing n tokens is allowed without blocking.
// On success the tokens are consumed; on failure the bucket is untouched.
func (rl *RateLimiter) AllowN(n int) bool {
	ok := rl.tryConsume(n, true)
	if !ok && rl.config.OnLimit != nil {
		rl.config.OnLimit(rl.config.Name)
	}
	return ok
}

// CanRequest reports whether n tokens are currently available.
// It refills but never consumes.
func (rl *RateLimiter) CanRequest(n int) bool {
	return rl.AvailableTokens() >= n
}

// AvailableTokens refills the bucket and returns the whole tokens available.
func (rl *RateLimiter) AvailableTokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return int(math.Floor(rl.tokens))
}

// Tokens refills the bucket and returns the raw token count.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

// Rate returns the current refill rate in tokens per second.
func (rl *RateLimiter) Rate() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.config.RefillRate
}

// Capacity returns the bucket capacity.
func (rl *RateLimiter) Capacity() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.config.Capacity
}

// TimeUntilAvailable returns how long until n tokens will be available.
// Zero means the request can proceed now.
func (rl *RateLimiter) TimeUntilAvailable(n int) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()

	needed := float64(n) - rl.tokens
	if needed <= 0 {
		return 0
	}
	return time.Duration(needed / rl.config.RefillRate * float64(time.Second))
}

// Wait blocks until one token is available or the context is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are consumed or the context is done.
// Cancellation consumes nothing: the consume either happens fully or not at all.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	for attempt := 0; ; attempt++ {
		// Only the first failed attempt counts as blocked, so a single
		// waiting call is not recorded once per polling iteration.
		if rl.tryConsume(n, attempt == 0) {
			return nil
		}

		wait := rl.TimeUntilAvailable(n)
		if wait <= 0 {
			// Lost the race to a concurrent caller; retry immediately.
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Execute runs fn if the rate limit allows, otherwise returns ErrRateLimited.
func (rl *RateLimiter) Execute(fn func() error) error {
	if !rl.Allow() {
		return ErrRateLimited
	}
	return fn()
}

// ExecuteWait blocks until the rate limit allows, then runs fn.
func (rl *RateLimiter) ExecuteWait(ctx context.Context, fn func() error) error {
	if err := rl.Wait(ctx); err != nil {
		return err
	}
	return fn()
}

// UpdateConfig swaps the limiter configuration.
// An invalid config is rejected and the previous config remains active.
// Registered watchers are invoked synchronously inside the critical section.
func (rl *RateLimiter) UpdateConfig(config RateLimiterConfig) error {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return apperrors.ValidationFailed(err.Error())
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	rl.config = config
	if rl.tokens > config.Capacity {
		rl.tokens = config.Capacity
	}
	for _, w := range rl.watchers {
		w(config)
	}
	return nil
}

// OnConfigChange registers a watcher invoked after every successful config update.
func (rl *RateLimiter) OnConfigChange(fn func(RateLimiterConfig)) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.watchers = append(rl.watchers, fn)
}

// Metrics returns a snapshot of the limiter counters.
func (rl *RateLimiter) Metrics() RateLimiterMetrics {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	m := RateLimiterMetrics{
		RequestsAllowed:     rl.requestsAllowed,
		RequestsBlocked:     rl.requestsBlocked,
		TotalTokensConsumed: rl.tokensConsumed,
	}
	if elapsed := time.Since(rl.createdAt).Seconds(); elapsed > 0 {
		m.Throughput = float64(rl.requestsAllowed) / elapsed
	}
	return m
}

// limiterState is the internal snapshot format for warm restarts.
// Versioned, but not a cross-version wire contract.
type limiterState struct {
	Version         int       `json:"v"`
	Tokens          float64   `json:"tokens"`
	LastRefill      time.Time `json:"last_refill"`
	RequestsAllowed uint64    `json:"requests_allowed"`
	RequestsBlocked uint64    `json:"requests_blocked"`
	TokensConsumed  float64   `json:"tokens_consumed"`
}

const limiterStateVersion = 1

// MarshalState serializes the bucket state so a limiter can be reconstructed
// with the same remaining budget after a process restart.
func (rl *RateLimiter) MarshalState() ([]byte, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()

	return json.Marshal(limiterState{
		Version:         limiterStateVersion,
		Tokens:          rl.tokens,
		LastRefill:      rl.lastRefill,
		RequestsAllowed: rl.requestsAllowed,
		RequestsBlocked: rl.requestsBlocked,
		TokensConsumed:  rl.tokensConsumed,
	})
}

// NewRateLimiterFromState reconstructs a limiter from a serialized snapshot.
// Elapsed downtime counts toward refill on the next observation.
func NewRateLimiterFromState(config RateLimiterConfig, data []byte) (*RateLimiter, error) {
	rl, err := NewRateLimiter(config)
	if err != nil {
		return nil, err
	}

	var st limiterState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, apperrors.Configuration(fmt.Sprintf("rate limiter state: %v", err))
	}
	if st.Version != limiterStateVersion {
		return nil, apperrors.Configuration(fmt.Sprintf("rate limiter state: unsupported version %d", st.Version))
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = math.Max(0, math.Min(st.Tokens, rl.config.Capacity))
	if !st.LastRefill.IsZero() {
		rl.lastRefill = st.LastRefill
	}
	rl.requestsAllowed = st.RequestsAllowed
	rl.requestsBlocked = st.RequestsBlocked
	rl.tokensConsumed = st.TokensConsumed
	return rl, nil
}

// tryConsume refills then consumes n tokens if available.
// Refill, check, and subtract happen under one lock so concurrent callers
// can never jointly over-admit.
func (rl *RateLimiter) tryConsume(n int, countBlocked bool) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill()

	if rl.tokens >= float64(n) {
		rl.tokens -= float64(n)
		rl.requestsAllowed++
		rl.tokensConsumed += float64(n)
		return true
	}

	if countBlocked {
		rl.requestsBlocked++
	}
	return false
}

// refill adds tokens based on elapsed time. Caller must hold rl.mu.
func (rl *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now

	rl.tokens += elapsed * rl.config.RefillRate
	if rl.tokens > rl.config.Capacity {
		rl.tokens = rl.config.Capacity
	}
}

// setRate changes the refill rate in place. Refills first so tokens already
// earned are credited at the old rate.
func (rl *RateLimiter) setRate(fn func(current float64) float64) float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	rl.config.RefillRate = fn(rl.config.RefillRate)
	return rl.config.RefillRate
}
