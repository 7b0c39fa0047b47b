package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	apperrors "github.com/kbukum/llmkit/errors"
)

// Common bulkhead errors.
var (
	ErrBulkheadFull    = errors.New("bulkhead is full")
	ErrBulkheadTimeout = errors.New("bulkhead wait timeout")
)

// BulkheadConfig configures a concurrency bulkhead.
type BulkheadConfig struct {
	// Name identifies this bulkhead for metrics/logging.
	Name string `yaml:"name" mapstructure:"name"`
	// MaxConcurrent is the maximum number of concurrent calls.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// MaxWait is how long to wait for a slot. 0 means fail immediately.
	MaxWait time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
	// OnReject is called when a request is rejected.
	OnReject func(name string) `yaml:"-" mapstructure:"-"`
}

// DefaultBulkheadConfig returns sensible defaults.
func DefaultBulkheadConfig(name string) BulkheadConfig {
	return BulkheadConfig{
		Name:          name,
		MaxConcurrent: 10,
	}
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *BulkheadConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 10
	}
}

// Validate checks that the concurrency bound is positive.
func (c *BulkheadConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("bulkhead %q: max concurrent must be positive (got %d)", c.Name, c.MaxConcurrent)
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("bulkhead %q: max wait must not be negative (got %v)", c.Name, c.MaxWait)
	}
	return nil
}

// Valid reports whether the configuration passes validation.
func (c *BulkheadConfig) Valid() bool {
	return c.Validate() == nil
}

// BulkheadMetrics is a point-in-time snapshot of bulkhead counters.
type BulkheadMetrics struct {
	InUse    int
	Rejected uint64
}

// Bulkhead bounds the number of concurrent calls to isolate failures.
type Bulkhead struct {
	config   BulkheadConfig
	sem      chan struct{}
	rejected atomic.Uint64
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) (*Bulkhead, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	return &Bulkhead{
		config: config,
		sem:    make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Acquire takes a slot, waiting up to MaxWait when the bulkhead is full.
// Returns ErrBulkheadFull or ErrBulkheadTimeout when no slot is available.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	default:
	}

	if b.config.MaxWait <= 0 {
		b.reject()
		return ErrBulkheadFull
	}

	timer := time.NewTimer(b.config.MaxWait)
	defer timer.Stop()

	select {
	case b.sem <- struct{}{}:
		return nil
	case <-timer.C:
		b.reject()
		return ErrBulkheadTimeout
	case <-ctx.Done():
		b.reject()
		return ctx.Err()
	}
}

// Release returns a slot to the bulkhead.
func (b *Bulkhead) Release() {
	<-b.sem
}

// Execute runs fn within an acquired slot.
func (b *Bulkhead) Execute(ctx context.Context, fn func() error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return fn()
}

// ExecuteWithResult runs a function that returns a value within a slot.
func ExecuteWithResult[T any](ctx context.Context, b *Bulkhead, fn func() (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// Available returns the number of free slots.
func (b *Bulkhead) Available() int {
	return b.config.MaxConcurrent - len(b.sem)
}

// InUse returns the number of slots currently held.
func (b *Bulkhead) InUse() int {
	return len(b.sem)
}

// Metrics returns a snapshot of the bulkhead counters.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	return BulkheadMetrics{
		InUse:    b.InUse(),
		Rejected: b.rejected.Load(),
	}
}

func (b *Bulkhead) reject() {
	b.rejected.Add(1)
	if b.config.OnReject != nil {
		b.config.OnReject(b.config.Name)
	}
}
