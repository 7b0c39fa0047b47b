package resilience

import (
	"fmt"
	"math"

	apperrors "github.com/kbukum/llmkit/errors"
)

// AdaptiveConfig configures an adaptive rate limiter.
// The refill rate floats within [MinRate, MaxRate], nudged by observed
// outcomes: successes raise it, errors lower it, and an explicit server-side
// rate limit signal (HTTP 429) lowers it twice as hard.
type AdaptiveConfig struct {
	RateLimiterConfig `yaml:",inline" mapstructure:",squash"`

	// MinRate is the floor for the refill rate, in tokens per second.
	MinRate float64 `yaml:"min_rate" mapstructure:"min_rate"`
	// MaxRate is the ceiling for the refill rate, in tokens per second.
	MaxRate float64 `yaml:"max_rate" mapstructure:"max_rate"`
	// AdjustmentFactor is the relative step applied per recorded outcome.
	AdjustmentFactor float64 `yaml:"adjustment_factor" mapstructure:"adjustment_factor"`
}

// DefaultAdaptiveConfig returns sensible defaults.
func DefaultAdaptiveConfig(name string) AdaptiveConfig {
	return AdaptiveConfig{
		RateLimiterConfig: DefaultRateLimiterConfig(name),
		MinRate:           1.0,
		MaxRate:           50.0,
		AdjustmentFactor:  0.1,
	}
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *AdaptiveConfig) ApplyDefaults() {
	c.RateLimiterConfig.ApplyDefaults()
	if c.MinRate == 0 {
		c.MinRate = 1.0
	}
	if c.MaxRate == 0 {
		c.MaxRate = 50.0
	}
	if c.AdjustmentFactor == 0 {
		c.AdjustmentFactor = 0.1
	}
}

// Validate checks the adaptive bounds on top of the base bucket config.
func (c *AdaptiveConfig) Validate() error {
	if err := c.RateLimiterConfig.Validate(); err != nil {
		return err
	}
	if c.MinRate <= 0 {
		return fmt.Errorf("adaptive limiter %q: min rate must be positive (got %v)", c.Name, c.MinRate)
	}
	if c.MaxRate < c.MinRate {
		return fmt.Errorf("adaptive limiter %q: max rate %v must be >= min rate %v", c.Name, c.MaxRate, c.MinRate)
	}
	if c.AdjustmentFactor <= 0 || c.AdjustmentFactor >= 0.5 {
		return fmt.Errorf("adaptive limiter %q: adjustment factor must be in (0, 0.5) (got %v)", c.Name, c.AdjustmentFactor)
	}
	if c.RefillRate < c.MinRate || c.RefillRate > c.MaxRate {
		return fmt.Errorf("adaptive limiter %q: refill rate %v must start within [%v, %v]",
			c.Name, c.RefillRate, c.MinRate, c.MaxRate)
	}
	return nil
}

// Valid reports whether the configuration passes validation.
func (c *AdaptiveConfig) Valid() bool {
	return c.Validate() == nil
}

// AdaptiveRateLimiter is a token bucket whose refill rate adapts to observed
// outcomes. All bucket operations are inherited from the embedded RateLimiter;
// rate adjustments happen under the same lock as refills, so the invariant
// MinRate <= rate <= MaxRate holds at every observation point.
type AdaptiveRateLimiter struct {
	*RateLimiter
	cfg AdaptiveConfig
}

// NewAdaptiveRateLimiter creates a new adaptive rate limiter.
func NewAdaptiveRateLimiter(config AdaptiveConfig) (*AdaptiveRateLimiter, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	rl, err := NewRateLimiter(config.RateLimiterConfig)
	if err != nil {
		return nil, err
	}
	return &AdaptiveRateLimiter{RateLimiter: rl, cfg: config}, nil
}

// RecordSuccess nudges the refill rate up toward MaxRate.
func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.setRate(func(cur float64) float64 {
		return math.Min(a.cfg.MaxRate, cur*(1+a.cfg.AdjustmentFactor))
	})
}

// RecordError nudges the refill rate down toward MinRate.
func (a *AdaptiveRateLimiter) RecordError() {
	a.setRate(func(cur float64) float64 {
		return math.Max(a.cfg.MinRate, cur*(1-a.cfg.AdjustmentFactor))
	})
}

// RecordRateLimitHit applies a double-strength down-adjustment.
// The server said 429; it is already overloaded, so back off harder than for
// a generic failure.
func (a *AdaptiveRateLimiter) RecordRateLimitHit() {
	a.setRate(func(cur float64) float64 {
		return math.Max(a.cfg.MinRate, cur*(1-2*a.cfg.AdjustmentFactor))
	})
}

// CurrentRate returns the refill rate, always within [MinRate, MaxRate].
func (a *AdaptiveRateLimiter) CurrentRate() float64 {
	return a.Rate()
}

// Bounds returns the configured rate floor and ceiling.
func (a *AdaptiveRateLimiter) Bounds() (min, max float64) {
	return a.cfg.MinRate, a.cfg.MaxRate
}
