package resilience

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kbukum/llmkit/errors"
)

// HealthLevel grades a dependency by observed latency.
type HealthLevel int

const (
	// HealthHealthy means latency is below the warning threshold.
	HealthHealthy HealthLevel = iota
	// HealthWarning means latency sits between the warning and unhealthy thresholds.
	HealthWarning
	// HealthUnhealthy means latency exceeds the unhealthy threshold.
	HealthUnhealthy
)

// String returns the health level name.
func (h HealthLevel) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthWarning:
		return "warning"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// EnhancedCircuitBreakerConfig adds latency awareness to a circuit breaker.
type EnhancedCircuitBreakerConfig struct {
	CircuitBreakerConfig `yaml:",inline" mapstructure:",squash"`

	// WarningLatency is the latency above which the dependency is degraded.
	WarningLatency time.Duration `yaml:"warning_latency" mapstructure:"warning_latency"`
	// UnhealthyLatency is the latency above which a call counts as a failure
	// even when it returned successfully. Must be >= WarningLatency.
	UnhealthyLatency time.Duration `yaml:"unhealthy_latency" mapstructure:"unhealthy_latency"`
}

// DefaultEnhancedCircuitBreakerConfig returns sensible defaults.
func DefaultEnhancedCircuitBreakerConfig(name string) EnhancedCircuitBreakerConfig {
	return EnhancedCircuitBreakerConfig{
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(name),
		WarningLatency:       2 * time.Second,
		UnhealthyLatency:     10 * time.Second,
	}
}

// Validate checks the latency thresholds on top of the base breaker config.
func (c *EnhancedCircuitBreakerConfig) Validate() error {
	if err := c.CircuitBreakerConfig.Validate(); err != nil {
		return err
	}
	if c.WarningLatency <= 0 {
		return fmt.Errorf("circuit breaker %q: warning latency must be positive (got %v)", c.Name, c.WarningLatency)
	}
	if c.UnhealthyLatency < c.WarningLatency {
		return fmt.Errorf("circuit breaker %q: unhealthy latency %v must be >= warning latency %v",
			c.Name, c.UnhealthyLatency, c.WarningLatency)
	}
	return nil
}

// Valid reports whether the configuration passes validation.
func (c *EnhancedCircuitBreakerConfig) Valid() bool {
	return c.Validate() == nil
}

// EnhancedCircuitBreaker is a circuit breaker that also treats slow calls as
// failures and grades dependency health from a latency moving average.
type EnhancedCircuitBreaker struct {
	*CircuitBreaker
	cfg EnhancedCircuitBreakerConfig

	latencyMu   sync.Mutex
	avgLatency  time.Duration
	sampleCount uint64
}

// ewmaAlpha weights the newest latency sample in the moving average.
const ewmaAlpha = 0.2

// NewEnhancedCircuitBreaker creates a latency-aware circuit breaker.
func NewEnhancedCircuitBreaker(config EnhancedCircuitBreakerConfig) (*EnhancedCircuitBreaker, error) {
	config.CircuitBreakerConfig.ApplyDefaults()
	if config.WarningLatency == 0 {
		config.WarningLatency = 2 * time.Second
	}
	if config.UnhealthyLatency == 0 {
		config.UnhealthyLatency = 10 * time.Second
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	cb, err := NewCircuitBreaker(config.CircuitBreakerConfig)
	if err != nil {
		return nil, err
	}
	return &EnhancedCircuitBreaker{CircuitBreaker: cb, cfg: config}, nil
}

// RecordResult records a call outcome with its latency.
// A successful call slower than UnhealthyLatency counts as a failure.
func (ecb *EnhancedCircuitBreaker) RecordResult(err error, latency time.Duration) {
	ecb.observeLatency(latency)

	if err == nil && latency >= ecb.cfg.UnhealthyLatency {
		ecb.RecordFailure()
		return
	}
	ecb.Record(err)
}

// Health grades the dependency from the latency moving average.
func (ecb *EnhancedCircuitBreaker) Health() HealthLevel {
	ecb.latencyMu.Lock()
	defer ecb.latencyMu.Unlock()

	switch {
	case ecb.sampleCount == 0 || ecb.avgLatency < ecb.cfg.WarningLatency:
		return HealthHealthy
	case ecb.avgLatency < ecb.cfg.UnhealthyLatency:
		return HealthWarning
	default:
		return HealthUnhealthy
	}
}

// AverageLatency returns the current latency moving average.
func (ecb *EnhancedCircuitBreaker) AverageLatency() time.Duration {
	ecb.latencyMu.Lock()
	defer ecb.latencyMu.Unlock()
	return ecb.avgLatency
}

func (ecb *EnhancedCircuitBreaker) observeLatency(latency time.Duration) {
	ecb.latencyMu.Lock()
	defer ecb.latencyMu.Unlock()

	if ecb.sampleCount == 0 {
		ecb.avgLatency = latency
	} else {
		ecb.avgLatency = time.Duration(ewmaAlpha*float64(latency) + (1-ewmaAlpha)*float64(ecb.avgLatency))
	}
	ecb.sampleCount++
}
