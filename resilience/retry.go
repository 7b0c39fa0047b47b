package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	apperrors "github.com/kbukum/llmkit/errors"
)

// RetryConfig configures the retry executor.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	// BackoffMultiplier grows the delay per attempt: base * multiplier^attempt.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
	// JitterMax bounds the uniform random jitter added to every delay.
	JitterMax time.Duration `yaml:"jitter_max" mapstructure:"jitter_max"`
	// MaxElapsedTime bounds the total time spent across attempts. 0 = unlimited.
	MaxElapsedTime time.Duration `yaml:"max_elapsed_time" mapstructure:"max_elapsed_time"`
	// Classifier decides which errors are worth retrying. Nil uses DefaultClassifier.
	Classifier Classifier `yaml:"-" mapstructure:"-"`
	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" mapstructure:"-"`
	// Metrics, when set, accumulates executor counters across calls.
	Metrics *RetryMetrics `yaml:"-" mapstructure:"-"`
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterMax:         100 * time.Millisecond,
	}
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *RetryConfig) ApplyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.JitterMax == 0 {
		c.JitterMax = 100 * time.Millisecond
	}
	if c.Classifier == nil {
		c.Classifier = DefaultClassifier()
	}
}

// Validate checks that the retry bounds are sane.
func (c *RetryConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("retry: max attempts must be positive (got %d)", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("retry: base delay must be positive (got %v)", c.BaseDelay)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("retry: backoff multiplier must be >= 1 (got %v)", c.BackoffMultiplier)
	}
	if c.JitterMax < 0 {
		return fmt.Errorf("retry: jitter max must not be negative (got %v)", c.JitterMax)
	}
	if c.MaxElapsedTime < 0 {
		return fmt.Errorf("retry: max elapsed time must not be negative (got %v)", c.MaxElapsedTime)
	}
	return nil
}

// Valid reports whether the configuration passes validation.
func (c *RetryConfig) Valid() bool {
	return c.Validate() == nil
}

// RetryMetrics accumulates executor counters. Safe for concurrent use.
type RetryMetrics struct {
	totalAttempts     atomic.Uint64
	successfulRetries atomic.Uint64
	failedOperations  atomic.Uint64
	timeoutErrors     atomic.Uint64
	totalDelayNanos   atomic.Int64
}

// RetryMetricsSnapshot is a point-in-time copy of the executor counters.
type RetryMetricsSnapshot struct {
	TotalAttempts     uint64
	SuccessfulRetries uint64
	FailedOperations  uint64
	TimeoutErrors     uint64
	TotalDelay        time.Duration
}

// SuccessRate returns successful retries over total attempts.
func (s RetryMetricsSnapshot) SuccessRate() float64 {
	if s.TotalAttempts == 0 {
		return 0
	}
	return float64(s.SuccessfulRetries) / float64(s.TotalAttempts)
}

// Snapshot returns a copy of the counters.
func (m *RetryMetrics) Snapshot() RetryMetricsSnapshot {
	return RetryMetricsSnapshot{
		TotalAttempts:     m.totalAttempts.Load(),
		SuccessfulRetries: m.successfulRetries.Load(),
		FailedOperations:  m.failedOperations.Load(),
		TimeoutErrors:     m.timeoutErrors.Load(),
		TotalDelay:        time.Duration(m.totalDelayNanos.Load()),
	}
}

// Retry executes fn with classified retries and exponential backoff.
//
// Attempts are 0-indexed: the delay after attempt n is
// BaseDelay * BackoffMultiplier^n plus uniform jitter in [0, JitterMax].
// A non-retryable error returns immediately; a timeout is retried but
// tracked distinctly. No delay is inserted after the final attempt.
// Exhausting all attempts (or MaxElapsedTime) returns the last error
// unchanged.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	cfg.ApplyDefaults()

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if cfg.MaxElapsedTime > 0 && time.Since(start) > cfg.MaxElapsedTime {
			break
		}

		if cfg.Metrics != nil {
			cfg.Metrics.totalAttempts.Add(1)
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 && cfg.Metrics != nil {
				cfg.Metrics.successfulRetries.Add(1)
			}
			return result, nil
		}
		lastErr = err

		class := cfg.Classifier.Classify(err)
		if class == ClassTimeout && cfg.Metrics != nil {
			cfg.Metrics.timeoutErrors.Add(1)
		}
		if class == ClassNonRetryable {
			return zero, err
		}

		// No sleep after the final attempt.
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(cfg, attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}
		if cfg.Metrics != nil {
			cfg.Metrics.totalDelayNanos.Add(int64(delay))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	if cfg.Metrics != nil {
		cfg.Metrics.failedOperations.Add(1)
	}
	if lastErr == nil {
		lastErr = apperrors.Timeout("retry budget exhausted before the first attempt")
	}
	return zero, lastErr
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := Retry(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// backoffDelay computes base * multiplier^attempt plus uniform jitter.
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt))
	if cfg.JitterMax > 0 {
		delay += rand.Float64() * float64(cfg.JitterMax)
	}
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
