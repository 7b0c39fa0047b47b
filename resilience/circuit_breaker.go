package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/kbukum/llmkit/errors"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen allows limited requests to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Common circuit breaker errors.
var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this circuit breaker for metrics/logging.
	Name string `yaml:"name" mapstructure:"name"`
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	// SuccessThreshold is the number of half-open successes required to close.
	SuccessThreshold int `yaml:"success_threshold" mapstructure:"success_threshold"`
	// HalfOpenMaxRequests is the number of probe requests allowed while half-open.
	HalfOpenMaxRequests int `yaml:"half_open_max_requests" mapstructure:"half_open_max_requests"`
	// RecoveryTimeout is how long to stay open before probing recovery.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" mapstructure:"recovery_timeout"`
	// HalfOpenTimeout bounds the half-open probe window. If it elapses before
	// enough successes arrive, the breaker reopens. 0 disables the window.
	HalfOpenTimeout time.Duration `yaml:"half_open_timeout" mapstructure:"half_open_timeout"`
	// Classifier decides which errors count as failures. Only retryable and
	// timeout classes count; 4xx/validation errors never trip the breaker.
	// Nil uses DefaultClassifier.
	Classifier Classifier `yaml:"-" mapstructure:"-"`
	// OnStateChange is called when the state changes.
	OnStateChange func(name string, from, to State) `yaml:"-" mapstructure:"-"`
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		HalfOpenMaxRequests: 3,
		RecoveryTimeout:     30 * time.Second,
	}
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *CircuitBreakerConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.HalfOpenMaxRequests == 0 {
		c.HalfOpenMaxRequests = 3
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.Classifier == nil {
		c.Classifier = DefaultClassifier()
	}
}

// Validate checks that all thresholds and timeouts are positive.
func (c *CircuitBreakerConfig) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("circuit breaker %q: failure threshold must be positive (got %d)", c.Name, c.FailureThreshold)
	}
	if c.SuccessThreshold <= 0 {
		return fmt.Errorf("circuit breaker %q: success threshold must be positive (got %d)", c.Name, c.SuccessThreshold)
	}
	if c.HalfOpenMaxRequests <= 0 {
		return fmt.Errorf("circuit breaker %q: half-open max requests must be positive (got %d)", c.Name, c.HalfOpenMaxRequests)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("circuit breaker %q: recovery timeout must be positive (got %v)", c.Name, c.RecoveryTimeout)
	}
	if c.HalfOpenTimeout < 0 {
		return fmt.Errorf("circuit breaker %q: half-open timeout must not be negative (got %v)", c.Name, c.HalfOpenTimeout)
	}
	return nil
}

// Valid reports whether the configuration passes validation.
func (c *CircuitBreakerConfig) Valid() bool {
	return c.Validate() == nil
}

// CircuitBreakerMetrics is a point-in-time snapshot of breaker counters.
type CircuitBreakerMetrics struct {
	State               State
	TripCount           uint64
	TotalRequests       uint64
	TotalFailures       uint64
	ConsecutiveFailures int
}

// CircuitBreaker implements the three-state circuit breaker pattern.
//
// States:
//   - Closed: normal operation, requests pass through
//   - Open: the dependency is failing, requests fail immediately
//   - Half-Open: probing recovery, a limited number of requests allowed
//
// Transitions are driven only by Allow, RecordSuccess, and RecordFailure;
// every transition happens inside a single critical section.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig

	state            State
	failures         int
	successes        int
	halfOpenRequests int
	openedAt         time.Time
	halfOpenStarted  time.Time

	tripCount     uint64
	totalRequests uint64
	totalFailures uint64

	watchers []func(CircuitBreakerConfig)
}

// NewCircuitBreaker creates a new circuit breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) (*CircuitBreaker, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}, nil
}

// Allow reports whether a request should proceed.
//
// Closed always allows. Open allows only once the recovery timeout has
// elapsed, transitioning to half-open and counting the call toward the probe
// budget. Half-open allows while probe budget remains and the half-open
// window has not expired; an expired window forces the breaker back to open
// with all accumulated successes discarded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.toState(StateHalfOpen)
			cb.halfOpenRequests = 1
			return true
		}
		return false

	case StateHalfOpen:
		if cb.config.HalfOpenTimeout > 0 && time.Since(cb.halfOpenStarted) >= cb.config.HalfOpenTimeout {
			cb.toState(StateOpen)
			return false
		}
		if cb.halfOpenRequests < cb.config.HalfOpenMaxRequests {
			cb.halfOpenRequests++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess records a successful call.
// Resets the consecutive failure count; in half-open, enough successes
// close the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.toState(StateClosed)
		}
	}
}

// RecordFailure records a failed call.
// In closed, reaching the failure threshold opens the circuit. In half-open,
// a single failure reopens it and discards accumulated successes.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.totalFailures++

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.toState(StateOpen)
		}
	case StateHalfOpen:
		cb.toState(StateOpen)
	}
}

// Record classifies err and updates the breaker accordingly.
// A nil error is a success. Timeout and retryable failures count toward the
// threshold; non-retryable errors (4xx, validation) count as neither success
// nor failure.
func (cb *CircuitBreaker) Record(err error) {
	if err == nil {
		cb.RecordSuccess()
		return
	}
	switch cb.config.Classifier.Classify(err) {
	case ClassRetryable, ClassTimeout:
		cb.RecordFailure()
	case ClassNonRetryable:
		// The dependency answered; it is not unhealthy.
	}
}

// Execute runs fn through the circuit breaker.
// Returns ErrCircuitOpen without invoking fn when the breaker refuses.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.Record(err)
	return err
}

// State returns the current state without side effects.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset forces the breaker back to closed with all counters cleared.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toState(StateClosed)
	cb.failures = 0
}

// Metrics returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerMetrics{
		State:               cb.state,
		TripCount:           cb.tripCount,
		TotalRequests:       cb.totalRequests,
		TotalFailures:       cb.totalFailures,
		ConsecutiveFailures: cb.failures,
	}
}

// UpdateConfig swaps the breaker configuration.
// An invalid config is rejected and the previous config remains active.
func (cb *CircuitBreaker) UpdateConfig(config CircuitBreakerConfig) error {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return apperrors.ValidationFailed(err.Error())
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.config = config
	for _, w := range cb.watchers {
		w(config)
	}
	return nil
}

// OnConfigChange registers a watcher invoked after every successful config update.
func (cb *CircuitBreaker) OnConfigChange(fn func(CircuitBreakerConfig)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.watchers = append(cb.watchers, fn)
}

// toState transitions to a new state. Caller must hold cb.mu.
func (cb *CircuitBreaker) toState(to State) {
	if cb.state == to {
		return
	}

	from := cb.state
	cb.state = to

	switch to {
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
		cb.halfOpenRequests = 0
	case StateOpen:
		cb.openedAt = time.Now()
		cb.successes = 0
		cb.halfOpenRequests = 0
		cb.tripCount++
	case StateHalfOpen:
		cb.halfOpenStarted = time.Now()
		cb.successes = 0
		cb.halfOpenRequests = 0
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}
