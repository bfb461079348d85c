package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	domainerrors "github.com/imagegenio/orchestrator/internal/domain/errors"
)

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()
	policy := &RetryPolicy{}

	if policy.ShouldRetry(nil) {
		t.Error("nil error should not be retryable")
	}

	if policy.ShouldRetry(errors.New("plain error")) {
		t.Error("a plain error should not be retryable")
	}

	transient := domainerrors.NewTransientBackendFailure("req-1", "generate", errors.New("boom"))
	if !policy.ShouldRetry(transient) {
		t.Error("a TransientBackendFailure should be retryable")
	}
}

func TestRetryPolicy_GetDelay_Exponential(t *testing.T) {
	t.Parallel()
	policy := &RetryPolicy{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 0, expected: 0},
		{attempt: 1, expected: 100 * time.Millisecond},
		{attempt: 2, expected: 200 * time.Millisecond},
		{attempt: 3, expected: 400 * time.Millisecond},
		{attempt: 4, expected: 800 * time.Millisecond},
		{attempt: 5, expected: 1600 * time.Millisecond},
		{attempt: 6, expected: 2 * time.Second}, // capped at MaxDelay
	}

	for _, tt := range tests {
		delay := policy.GetDelay(tt.attempt)
		if delay != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, delay)
		}
	}
}

func TestRetryPolicy_Execute_Success(t *testing.T) {
	t.Parallel()
	policy := &RetryPolicy{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond}

	attempts := 0
	err := policy.Execute(context.Background(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryPolicy_Execute_SuccessAfterRetry(t *testing.T) {
	t.Parallel()
	policy := &RetryPolicy{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond}

	attempts := 0
	err := policy.Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return domainerrors.NewTransientBackendFailure("req-1", "generate", errors.New("temporary"))
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicy_Execute_MaxAttemptsExceeded(t *testing.T) {
	t.Parallel()
	policy := &RetryPolicy{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond}

	attempts := 0
	err := policy.Execute(context.Background(), func() error {
		attempts++
		return domainerrors.NewTransientBackendFailure("req-1", "generate", errors.New("persistent"))
	})

	if err == nil {
		t.Error("expected error after max attempts")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicy_Execute_NonRetryableError(t *testing.T) {
	t.Parallel()
	policy := &RetryPolicy{MaxAttempts: 3, InitialDelay: 10 * time.Millisecond}

	attempts := 0
	err := policy.Execute(context.Background(), func() error {
		attempts++
		return errors.New("invalid input") // not typed-retryable
	})

	if err == nil {
		t.Error("expected error")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt (no retry for non-retryable error), got %d", attempts)
	}
}

func TestRetryPolicy_Execute_ContextCancellation(t *testing.T) {
	t.Parallel()
	policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := policy.Execute(ctx, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return domainerrors.NewTransientBackendFailure("req-1", "generate", errors.New("error"))
	})

	if err == nil {
		t.Error("expected error due to context cancellation")
	}
	if attempts >= 5 {
		t.Errorf("expected fewer than 5 attempts due to cancellation, got %d", attempts)
	}
}

func TestRetryPolicy_Execute_OnRetryCallback(t *testing.T) {
	t.Parallel()
	callbackCalls := 0

	policy := &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		OnRetry: func(attempt int, err error) {
			callbackCalls++
			if attempt < 1 || attempt > 2 {
				t.Errorf("unexpected attempt number in callback: %d", attempt)
			}
		},
	}

	attempts := 0
	err := policy.Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return domainerrors.NewTransientBackendFailure("req-1", "generate", errors.New("error"))
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected eventual success, got %v", err)
	}

	if callbackCalls != 2 {
		t.Errorf("expected 2 callback calls, got %d", callbackCalls)
	}
}

func TestRetryPolicy_Execute_ZeroMaxAttempts(t *testing.T) {
	t.Parallel()
	policy := &RetryPolicy{MaxAttempts: 0, InitialDelay: 10 * time.Millisecond}

	attempts := 0
	if err := policy.Execute(context.Background(), func() error {
		attempts++
		return nil
	}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if attempts != 1 {
		t.Errorf("expected 1 attempt with MaxAttempts=0, got %d", attempts)
	}
}

func TestRetryPolicy_GetDelay_ZeroAttempt(t *testing.T) {
	t.Parallel()
	policy := &RetryPolicy{InitialDelay: 100 * time.Millisecond}

	if delay := policy.GetDelay(0); delay != 0 {
		t.Errorf("expected 0 delay for attempt 0, got %v", delay)
	}
}
