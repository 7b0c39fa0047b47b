package resilience

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func mustRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl, err := NewRateLimiter(cfg)
	if err != nil {
		t.Fatalf("NewRateLimiter: %v", err)
	}
	return rl
}

func TestRateLimiter_AllowsWithinCapacity(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   5,
		RefillRate: 10.0,
	})

	// A fresh limiter starts full.
	for i := 0; i < 5; i++ {
		if !rl.Allow() {
			t.Errorf("request %d should be allowed", i)
		}
	}
}

func TestRateLimiter_RejectsOverCapacity(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   3,
		RefillRate: 10.0,
	})

	for i := 0; i < 3; i++ {
		rl.Allow()
	}

	if rl.Allow() {
		t.Error("request should be rejected once the bucket is empty")
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   1,
		RefillRate: 100.0, // 1 token per 10ms
	})

	if !rl.Allow() {
		t.Error("first request should be allowed")
	}
	if rl.Allow() {
		t.Error("second request should be rejected")
	}

	time.Sleep(20 * time.Millisecond)

	if !rl.Allow() {
		t.Error("request after refill should be allowed")
	}
}

func TestRateLimiter_NeverExceedsCapacity(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   3,
		RefillRate: 1000.0,
	})

	// Even after plenty of refill time the bucket caps at capacity.
	time.Sleep(20 * time.Millisecond)

	if tokens := rl.Tokens(); tokens > 3.0 {
		t.Errorf("tokens %f exceed capacity 3", tokens)
	}
	if !rl.AllowN(3) {
		t.Error("full bucket should admit a capacity-sized request")
	}
	if rl.Allow() {
		t.Error("bucket should be empty after consuming capacity")
	}
}

func TestRateLimiter_AllowNIsAllOrNothing(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   5,
		RefillRate: 0.001, // effectively no refill during the test
	})

	if !rl.AllowN(3) {
		t.Error("should allow 3 tokens from a full bucket of 5")
	}
	if rl.AllowN(3) {
		t.Error("should reject 3 tokens when only 2 remain")
	}

	// The failed AllowN must not have consumed anything.
	if !rl.AllowN(2) {
		t.Error("remaining 2 tokens should still be available")
	}
}

func TestRateLimiter_ConcurrentAdmissionsNeverOversubscribe(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   10,
		RefillRate: 0.001,
	})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow() {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 10 {
		t.Errorf("expected exactly 10 admissions, got %d", admitted.Load())
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   1,
		RefillRate: 100.0,
	})

	rl.Allow()

	start := time.Now()
	err := rl.Wait(context.Background())
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	// Should have waited about 10ms for 1 token at 100/s.
	if elapsed < 5*time.Millisecond || elapsed > 50*time.Millisecond {
		t.Errorf("expected wait around 10ms, got %v", elapsed)
	}
}

func TestRateLimiter_WaitRespectsContext(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   1,
		RefillRate: 1.0,
	})

	rl.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}

	// Cancellation must not have consumed the pending request.
	time.Sleep(1100 * time.Millisecond)
	if !rl.Allow() {
		t.Error("token refilled after cancellation should be available")
	}
}

func TestRateLimiter_Execute(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   1,
		RefillRate: 0.001,
	})

	called := false
	err := rl.Execute(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !called {
		t.Error("function was not called")
	}

	err = rl.Execute(func() error { return nil })
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_OnLimitCallback(t *testing.T) {
	var limitCount atomic.Int32

	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   1,
		RefillRate: 0.001,
		OnLimit: func(name string) {
			limitCount.Add(1)
		},
	})

	rl.Allow()
	rl.Allow()
	rl.Allow()

	if limitCount.Load() != 2 {
		t.Errorf("expected 2 limit callbacks, got %d", limitCount.Load())
	}
}

func TestRateLimiter_TimeUntilAvailable(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   1,
		RefillRate: 10.0, // 100ms per token
	})

	if wait := rl.TimeUntilAvailable(1); wait != 0 {
		t.Errorf("full bucket should report zero wait, got %v", wait)
	}

	rl.Allow()

	wait := rl.TimeUntilAvailable(1)
	if wait <= 0 || wait > 150*time.Millisecond {
		t.Errorf("expected wait around 100ms, got %v", wait)
	}
}

func TestRateLimiter_InitialTokens(t *testing.T) {
	two := 2.0
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:          "test",
		Capacity:      10,
		RefillRate:    0.001,
		InitialTokens: &two,
	})

	if !rl.AllowN(2) {
		t.Error("should allow the 2 initial tokens")
	}
	if rl.Allow() {
		t.Error("should reject beyond the initial tokens")
	}
}

func TestRateLimiter_RejectsInvalidConfig(t *testing.T) {
	if _, err := NewRateLimiter(RateLimiterConfig{Capacity: -1, RefillRate: 10}); err == nil {
		t.Error("negative capacity should be rejected")
	}
	if _, err := NewRateLimiter(RateLimiterConfig{Capacity: 10, RefillRate: -1}); err == nil {
		t.Error("negative refill rate should be rejected")
	}
	bad := 99.0
	if _, err := NewRateLimiter(RateLimiterConfig{Capacity: 10, RefillRate: 1, InitialTokens: &bad}); err == nil {
		t.Error("initial tokens above capacity should be rejected")
	}
}

func TestRateLimiter_UpdateConfig(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   10,
		RefillRate: 5.0,
	})

	var seen atomic.Int32
	rl.OnConfigChange(func(cfg RateLimiterConfig) {
		seen.Add(1)
	})

	if err := rl.UpdateConfig(RateLimiterConfig{Name: "test", Capacity: 4, RefillRate: 2.0}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	if rl.Rate() != 2.0 {
		t.Errorf("expected rate 2, got %f", rl.Rate())
	}
	// Tokens are clamped to the new, smaller capacity.
	if tokens := rl.Tokens(); tokens > 4.01 {
		t.Errorf("tokens %f exceed new capacity 4", tokens)
	}
	if seen.Load() != 1 {
		t.Errorf("expected 1 config watcher call, got %d", seen.Load())
	}

	// An invalid update is rejected and leaves the old config in place.
	if err := rl.UpdateConfig(RateLimiterConfig{Capacity: -5, RefillRate: 1}); err == nil {
		t.Error("invalid update should be rejected")
	}
	if rl.Rate() != 2.0 {
		t.Errorf("rejected update must not change the rate, got %f", rl.Rate())
	}
}

func TestRateLimiter_Metrics(t *testing.T) {
	rl := mustRateLimiter(t, RateLimiterConfig{
		Name:       "test",
		Capacity:   2,
		RefillRate: 0.001,
	})

	rl.Allow()
	rl.Allow()
	rl.Allow() // blocked

	m := rl.Metrics()
	if m.RequestsAllowed != 2 {
		t.Errorf("expected 2 allowed, got %d", m.RequestsAllowed)
	}
	if m.RequestsBlocked != 1 {
		t.Errorf("expected 1 blocked, got %d", m.RequestsBlocked)
	}
	if math.Abs(m.TotalTokensConsumed-2) > 0.01 {
		t.Errorf("expected 2 tokens consumed, got %f", m.TotalTokensConsumed)
	}
}

func TestRateLimiter_StateRoundTrip(t *testing.T) {
	cfg := RateLimiterConfig{
		Name:       "test",
		Capacity:   10,
		RefillRate: 0.001,
	}
	rl := mustRateLimiter(t, cfg)
	rl.AllowN(7)

	data, err := rl.MarshalState()
	if err != nil {
		t.Fatalf("MarshalState: %v", err)
	}

	restored, err := NewRateLimiterFromState(cfg, data)
	if err != nil {
		t.Fatalf("NewRateLimiterFromState: %v", err)
	}

	if !restored.AllowN(3) {
		t.Error("restored limiter should have ~3 tokens left")
	}
	if restored.Allow() {
		t.Error("restored limiter should be empty after consuming the remainder")
	}

	// Counters carry over: one AllowN before marshal, one after restore.
	m := restored.Metrics()
	if m.RequestsAllowed != 2 {
		t.Errorf("expected carried-over counters, got %d allowed", m.RequestsAllowed)
	}
}

func TestRateLimiter_StateRejectsGarbage(t *testing.T) {
	cfg := RateLimiterConfig{Name: "test", Capacity: 10, RefillRate: 1}

	if _, err := NewRateLimiterFromState(cfg, []byte("not json")); err == nil {
		t.Error("garbage state should be rejected")
	}
	if _, err := NewRateLimiterFromState(cfg, []byte(`{"v":99}`)); err == nil {
		t.Error("unknown state version should be rejected")
	}
}
