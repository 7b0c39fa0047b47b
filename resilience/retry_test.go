package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		BaseDelay:         time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterMax:         time.Millisecond,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastRetryConfig(3), func() (string, error) {
		calls++
		return "ok", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetry_RetriesTransientFailure(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastRetryConfig(3), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	lastErr := errors.New("503 service unavailable")
	calls := 0
	_, err := Retry(context.Background(), fastRetryConfig(3), func() (struct{}, error) {
		calls++
		return struct{}{}, lastErr
	})

	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
	// Exhaustion surfaces the last error unchanged, not a wrapper.
	if !errors.Is(err, lastErr) {
		t.Errorf("expected last error, got %v", err)
	}
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetryConfig(5), func() (struct{}, error) {
		calls++
		return struct{}{}, errors.New("400 bad request")
	})

	if calls != 1 {
		t.Errorf("non-retryable error should stop after 1 attempt, got %d", calls)
	}
	if err == nil {
		t.Error("expected the original error")
	}
}

func TestRetry_RetriesTimeouts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetryConfig(3), func() (struct{}, error) {
		calls++
		return struct{}{}, errors.New("request timeout")
	})

	if calls != 3 {
		t.Errorf("timeouts should be retried, got %d attempts", calls)
	}
	if err == nil {
		t.Error("expected the timeout error")
	}
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       10,
		BaseDelay:         50 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	_, err := Retry(ctx, cfg, func() (struct{}, error) {
		calls++
		return struct{}{}, errors.New("connection refused")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call before the deadline, got %d", calls)
	}
}

func TestRetry_BackoffGrows(t *testing.T) {
	var delays []time.Duration
	cfg := RetryConfig{
		MaxAttempts:       4,
		BaseDelay:         2 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterMax:         time.Nanosecond, // effectively none
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
	}

	_, _ = Retry(context.Background(), cfg, func() (struct{}, error) {
		return struct{}{}, errors.New("connection refused")
	})

	if len(delays) != 3 {
		t.Fatalf("expected 3 retry delays, got %d", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Errorf("delay %d (%v) should exceed delay %d (%v)", i, delays[i], i-1, delays[i-1])
		}
	}
}

func TestRetry_MaxElapsedTime(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       100,
		BaseDelay:         10 * time.Millisecond,
		BackoffMultiplier: 1.0,
		JitterMax:         time.Nanosecond,
		MaxElapsedTime:    35 * time.Millisecond,
	}

	calls := 0
	start := time.Now()
	_, err := Retry(context.Background(), cfg, func() (struct{}, error) {
		calls++
		return struct{}{}, errors.New("connection refused")
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Error("expected the last error")
	}
	if calls >= 100 {
		t.Errorf("elapsed budget should stop retries early, got %d calls", calls)
	}
	if elapsed > 200*time.Millisecond {
		t.Errorf("retries ran far past the elapsed budget: %v", elapsed)
	}
}

func TestRetry_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetryConfig(3)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	_, _ = Retry(context.Background(), cfg, func() (struct{}, error) {
		return struct{}{}, errors.New("connection refused")
	})

	// Callback fires before each sleep, never after the final attempt.
	if len(attempts) != 2 {
		t.Fatalf("expected 2 callbacks, got %d", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected attempts [1 2], got %v", attempts)
	}
}

func TestRetry_Metrics(t *testing.T) {
	metrics := &RetryMetrics{}
	cfg := fastRetryConfig(3)
	cfg.Metrics = metrics

	// One operation that succeeds on the second attempt.
	calls := 0
	_, err := Retry(context.Background(), cfg, func() (struct{}, error) {
		calls++
		if calls < 2 {
			return struct{}{}, errors.New("connection refused")
		}
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One operation that fails all attempts with timeouts.
	_, _ = Retry(context.Background(), cfg, func() (struct{}, error) {
		return struct{}{}, errors.New("request timeout")
	})

	snap := metrics.Snapshot()
	if snap.TotalAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", snap.TotalAttempts)
	}
	if snap.SuccessfulRetries != 1 {
		t.Errorf("expected 1 successful retry, got %d", snap.SuccessfulRetries)
	}
	if snap.FailedOperations != 1 {
		t.Errorf("expected 1 failed operation, got %d", snap.FailedOperations)
	}
	if snap.TimeoutErrors != 3 {
		t.Errorf("expected 3 timeout errors, got %d", snap.TimeoutErrors)
	}
	if snap.SuccessRate() <= 0 {
		t.Errorf("expected positive success rate, got %f", snap.SuccessRate())
	}
}

func TestRetry_CustomClassifier(t *testing.T) {
	cfg := fastRetryConfig(5)
	cfg.Classifier = ClassifierFunc(func(err error) ErrorClass {
		return ClassNonRetryable
	})

	calls := 0
	_, _ = Retry(context.Background(), cfg, func() (struct{}, error) {
		calls++
		return struct{}{}, errors.New("anything")
	})

	if calls != 1 {
		t.Errorf("custom classifier should stop retries, got %d calls", calls)
	}
}

func TestRetryFunc(t *testing.T) {
	calls := 0
	err := RetryFunc(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	bad := []RetryConfig{
		{MaxAttempts: -1, BaseDelay: time.Millisecond, BackoffMultiplier: 2},
		{MaxAttempts: 3, BaseDelay: -time.Millisecond, BackoffMultiplier: 2},
		{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffMultiplier: 0.5},
	}
	for i, cfg := range bad {
		if cfg.Valid() {
			t.Errorf("config %d should be invalid", i)
		}
	}

	good := DefaultRetryConfig()
	if !good.Valid() {
		t.Errorf("default config should be valid: %v", good.Validate())
	}
}
