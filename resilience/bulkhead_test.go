package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func mustBulkhead(t *testing.T, cfg BulkheadConfig) *Bulkhead {
	t.Helper()
	bh, err := NewBulkhead(cfg)
	if err != nil {
		t.Fatalf("NewBulkhead: %v", err)
	}
	return bh
}

func TestBulkhead_AllowsUpToMaxConcurrent(t *testing.T) {
	bh := mustBulkhead(t, BulkheadConfig{Name: "test", MaxConcurrent: 2})

	ctx := context.Background()
	if err := bh.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := bh.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if err := bh.Acquire(ctx); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}

	bh.Release()
	if err := bh.Acquire(ctx); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}

func TestBulkhead_WaitsForSlot(t *testing.T) {
	bh := mustBulkhead(t, BulkheadConfig{
		Name:          "test",
		MaxConcurrent: 1,
		MaxWait:       200 * time.Millisecond,
	})

	ctx := context.Background()
	if err := bh.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		bh.Release()
	}()

	start := time.Now()
	if err := bh.Acquire(ctx); err != nil {
		t.Fatalf("waiting acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected to wait for the slot, waited %v", elapsed)
	}
}

func TestBulkhead_WaitTimeout(t *testing.T) {
	bh := mustBulkhead(t, BulkheadConfig{
		Name:          "test",
		MaxConcurrent: 1,
		MaxWait:       20 * time.Millisecond,
	})

	ctx := context.Background()
	_ = bh.Acquire(ctx)

	if err := bh.Acquire(ctx); !errors.Is(err, ErrBulkheadTimeout) {
		t.Errorf("expected ErrBulkheadTimeout, got %v", err)
	}
}

func TestBulkhead_AcquireRespectsContext(t *testing.T) {
	bh := mustBulkhead(t, BulkheadConfig{
		Name:          "test",
		MaxConcurrent: 1,
		MaxWait:       time.Second,
	})

	_ = bh.Acquire(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := bh.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestBulkhead_Execute(t *testing.T) {
	bh := mustBulkhead(t, BulkheadConfig{Name: "test", MaxConcurrent: 1})

	called := false
	err := bh.Execute(context.Background(), func() error {
		called = true
		if bh.InUse() != 1 {
			t.Errorf("expected 1 slot in use, got %d", bh.InUse())
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !called {
		t.Error("function was not called")
	}
	if bh.InUse() != 0 {
		t.Errorf("slot should be released after Execute, got %d in use", bh.InUse())
	}
}

func TestBulkhead_ExecuteWithResult(t *testing.T) {
	bh := mustBulkhead(t, BulkheadConfig{Name: "test", MaxConcurrent: 1})

	result, err := ExecuteWithResult(context.Background(), bh, func() (string, error) {
		return "done", nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "done" {
		t.Errorf("expected done, got %q", result)
	}
}

func TestBulkhead_ConcurrentNeverExceedsLimit(t *testing.T) {
	const limit = 3
	bh := mustBulkhead(t, BulkheadConfig{
		Name:          "test",
		MaxConcurrent: limit,
		MaxWait:       time.Second,
	})

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bh.Execute(context.Background(), func() error {
				cur := inFlight.Add(1)
				for {
					prev := maxInFlight.Load()
					if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	if maxInFlight.Load() > limit {
		t.Errorf("observed %d concurrent calls, limit is %d", maxInFlight.Load(), limit)
	}
}

func TestBulkhead_MetricsAndCallbacks(t *testing.T) {
	var rejected atomic.Int32
	bh := mustBulkhead(t, BulkheadConfig{
		Name:          "test",
		MaxConcurrent: 1,
		OnReject: func(name string) {
			rejected.Add(1)
		},
	})

	ctx := context.Background()
	_ = bh.Acquire(ctx)
	_ = bh.Acquire(ctx)
	_ = bh.Acquire(ctx)

	m := bh.Metrics()
	if m.InUse != 1 {
		t.Errorf("expected 1 in use, got %d", m.InUse)
	}
	if m.Rejected != 2 {
		t.Errorf("expected 2 rejections, got %d", m.Rejected)
	}
	if rejected.Load() != 2 {
		t.Errorf("expected 2 reject callbacks, got %d", rejected.Load())
	}
	if bh.Available() != 0 {
		t.Errorf("expected 0 available, got %d", bh.Available())
	}
}

func TestBulkhead_RejectsInvalidConfig(t *testing.T) {
	if _, err := NewBulkhead(BulkheadConfig{MaxConcurrent: -1}); err == nil {
		t.Error("negative max concurrent should be rejected")
	}
	if _, err := NewBulkhead(BulkheadConfig{MaxConcurrent: 1, MaxWait: -time.Second}); err == nil {
		t.Error("negative max wait should be rejected")
	}
}
