package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_DefaultConfig(t *testing.T) {
	config := DefaultBackoffConfig()

	if config.InitialDelay != 100*time.Millisecond {
		t.Errorf("Expected initial delay of 100ms, got %v", config.InitialDelay)
	}

	if config.MaxAttempts != 3 {
		t.Errorf("Expected max attempts of 3, got %v", config.MaxAttempts)
	}
}

func TestBackoff_SuccessFirstAttempt(t *testing.T) {
	backoff := NewBackoff(ImmediateConfig(3))

	attempts := 0
	err := backoff.Retry(context.Background(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestBackoff_ImmediateRetryDoesNotWait(t *testing.T) {
	backoff := NewBackoff(ImmediateConfig(3))

	attempts := 0
	start := time.Now()
	err := backoff.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Expected immediate retries, took %v", elapsed)
	}
}

func TestBackoff_FailureAfterMaxAttempts(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  2,
	})

	attempts := 0
	expectedError := errors.New("persistent error")
	err := backoff.Retry(context.Background(), func() error {
		attempts++
		return expectedError
	})

	if err != expectedError {
		t.Errorf("Expected persistent error, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestBackoff_ContextCancellation(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
	})

	attempts := 0
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := backoff.Retry(ctx, func() error {
		attempts++
		return errors.New("will be cancelled")
	})

	if err != context.DeadlineExceeded {
		t.Errorf("Expected context deadline exceeded, got %v", err)
	}
	if attempts < 1 {
		t.Errorf("Expected at least 1 attempt, got %d", attempts)
	}
}

func TestBackoff_ExponentialIncrease(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
	})

	expected := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, want := range expected {
		if got := backoff.GetNextDelay(i + 1); got != want {
			t.Errorf("attempt %d: expected delay %v, got %v", i+1, want, got)
		}
	}
}

func TestBackoff_MaxDelayConstraint(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     150 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	})

	for i := 0; i < 20; i++ {
		if delay := backoff.GetNextDelay(5); delay > 150*time.Millisecond {
			t.Errorf("Expected delay capped at 150ms, got %v", delay)
		}
	}
}

func TestBackoff_WithPredicate_NonRetryableError(t *testing.T) {
	backoff := NewBackoff(ImmediateConfig(3))

	attempts := 0
	nonRetryableError := errors.New("forbidden")

	err := backoff.RetryWithPredicate(context.Background(), func() error {
		attempts++
		return nonRetryableError
	}, func(err error) bool {
		return err != nonRetryableError
	})

	if err != nonRetryableError {
		t.Errorf("Expected non-retryable error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected only 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestBackoff_OnRetryHook(t *testing.T) {
	var seen []int
	backoff := NewBackoff(ImmediateConfig(3)).OnRetry(func(attempt int, err error) {
		seen = append(seen, attempt)
	})

	_ = backoff.Retry(context.Background(), func() error {
		return errors.New("always")
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("Expected retry hook for attempts [1 2], got %v", seen)
	}
}

func TestNewBackoff_ClampsAttempts(t *testing.T) {
	backoff := NewBackoff(BackoffConfig{})
	if backoff.MaxAttempts() != 1 {
		t.Errorf("Expected at least one attempt, got %d", backoff.MaxAttempts())
	}
}
