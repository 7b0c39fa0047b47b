package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func mustCircuitBreaker(t *testing.T, cfg CircuitBreakerConfig) *CircuitBreaker {
	t.Helper()
	cb, err := NewCircuitBreaker(cfg)
	if err != nil {
		t.Fatalf("NewCircuitBreaker: %v", err)
	}
	return cb
}

func TestCircuitBreaker_StartsInClosedState(t *testing.T) {
	cb := mustCircuitBreaker(t, DefaultCircuitBreakerConfig("test"))

	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed, got %s", cb.State())
	}
}

func TestCircuitBreaker_AllowsRequestsWhenClosed(t *testing.T) {
	cb := mustCircuitBreaker(t, DefaultCircuitBreakerConfig("test"))

	var called bool
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !called {
		t.Error("function was not called")
	}
}

func TestCircuitBreaker_OpensAfterFailureThreshold(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Second,
	})

	testErr := errors.New("connection refused")

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return testErr })
	}

	if cb.State() != StateOpen {
		t.Errorf("expected StateOpen, got %s", cb.State())
	}

	// Next request fails immediately without invoking the function.
	err := cb.Execute(func() error {
		t.Error("function should not have been called")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_NonRetryableErrorsDoNotTrip(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Second,
	})

	// Client-side errors mean the dependency answered; they never open
	// the circuit no matter how many arrive.
	for i := 0; i < 10; i++ {
		_ = cb.Execute(func() error { return errors.New("401 unauthorized") })
	}

	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed after 4xx errors, got %s", cb.State())
	}
	if cb.Failures() != 0 {
		t.Errorf("expected 0 consecutive failures, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		RecoveryTimeout:  time.Second,
	})

	fail := errors.New("connection reset")
	_ = cb.Execute(func() error { return fail })
	_ = cb.Execute(func() error { return fail })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return fail })
	_ = cb.Execute(func() error { return fail })

	// The success in the middle reset the streak, so only 2 consecutive.
	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed, got %s", cb.State())
	}
}

func TestCircuitBreaker_TransitionsToHalfOpenAfterRecoveryTimeout(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  50 * time.Millisecond,
	})

	_ = cb.Execute(func() error { return errors.New("fail: eof") })
	if cb.State() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.State())
	}

	time.Sleep(60 * time.Millisecond)

	// Allow drives the transition; a blocked breaker past its recovery
	// timeout admits the probe.
	if !cb.Allow() {
		t.Error("probe request should be allowed after recovery timeout")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("expected StateHalfOpen, got %s", cb.State())
	}
}

func TestCircuitBreaker_ClosesAfterSuccessesInHalfOpen(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		RecoveryTimeout:  10 * time.Millisecond,
	})

	_ = cb.Execute(func() error { return errors.New("fail: eof") })
	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed after %d successes, got %s", 2, cb.State())
	}
}

func TestCircuitBreaker_ReopensOnFailureInHalfOpen(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})

	_ = cb.Execute(func() error { return errors.New("fail: eof") })
	time.Sleep(15 * time.Millisecond)

	_ = cb.Execute(func() error { return errors.New("fail again: eof") })

	if cb.State() != StateOpen {
		t.Errorf("expected StateOpen, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:                "test",
		FailureThreshold:    1,
		SuccessThreshold:    10, // keep it half-open during the probes
		HalfOpenMaxRequests: 2,
		RecoveryTimeout:     10 * time.Millisecond,
	})

	_ = cb.Execute(func() error { return errors.New("fail: eof") })
	time.Sleep(15 * time.Millisecond)

	if !cb.Allow() {
		t.Error("first probe should be allowed")
	}
	if !cb.Allow() {
		t.Error("second probe should be allowed")
	}
	if cb.Allow() {
		t.Error("third probe should be rejected over the half-open budget")
	}
}

func TestCircuitBreaker_HalfOpenWindowExpiryReopens(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		HalfOpenTimeout:  20 * time.Millisecond,
	})

	_ = cb.Execute(func() error { return errors.New("fail: eof") })
	time.Sleep(15 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("probe should be allowed after recovery timeout")
	}
	cb.RecordSuccess()

	// Let the probe window lapse without enough successes.
	time.Sleep(25 * time.Millisecond)

	if cb.Allow() {
		t.Error("request after expired half-open window should be rejected")
	}
	if cb.State() != StateOpen {
		t.Errorf("expected StateOpen after window expiry, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})

	_ = cb.Execute(func() error { return errors.New("fail: eof") })
	if cb.State() != StateOpen {
		t.Fatalf("expected StateOpen, got %s", cb.State())
	}

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed after reset, got %s", cb.State())
	}
	if cb.Failures() != 0 {
		t.Errorf("expected 0 failures after reset, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var stateChanges []struct{ from, to State }

	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			stateChanges = append(stateChanges, struct{ from, to State }{from, to})
			mu.Unlock()
		},
	})

	_ = cb.Execute(func() error { return errors.New("fail: eof") })
	time.Sleep(15 * time.Millisecond)
	cb.Allow()

	mu.Lock()
	defer mu.Unlock()

	if len(stateChanges) < 2 {
		t.Fatalf("expected at least 2 state changes, got %d", len(stateChanges))
	}
	if stateChanges[0].from != StateClosed || stateChanges[0].to != StateOpen {
		t.Errorf("expected Closed->Open, got %s->%s", stateChanges[0].from, stateChanges[0].to)
	}
	if stateChanges[1].from != StateOpen || stateChanges[1].to != StateHalfOpen {
		t.Errorf("expected Open->HalfOpen, got %s->%s", stateChanges[1].from, stateChanges[1].to)
	}
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	cb := mustCircuitBreaker(t, CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	})

	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errors.New("fail: eof") })
	_ = cb.Execute(func() error { return errors.New("fail: eof") })

	m := cb.Metrics()
	if m.State != StateOpen {
		t.Errorf("expected StateOpen, got %s", m.State)
	}
	if m.TripCount != 1 {
		t.Errorf("expected 1 trip, got %d", m.TripCount)
	}
	if m.TotalRequests != 3 {
		t.Errorf("expected 3 requests, got %d", m.TotalRequests)
	}
	if m.TotalFailures != 2 {
		t.Errorf("expected 2 failures, got %d", m.TotalFailures)
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := mustCircuitBreaker(t, DefaultCircuitBreakerConfig("test"))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(func() error { return nil })
			_ = cb.State()
			_ = cb.Failures()
		}()
	}
	wg.Wait()

	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed, got %s", cb.State())
	}
}

func TestCircuitBreaker_RejectsInvalidConfig(t *testing.T) {
	if _, err := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: -1}); err == nil {
		t.Error("negative failure threshold should be rejected")
	}
	if _, err := NewCircuitBreaker(CircuitBreakerConfig{RecoveryTimeout: -time.Second}); err == nil {
		t.Error("negative recovery timeout should be rejected")
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}
