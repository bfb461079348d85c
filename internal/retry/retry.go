package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	domainerrors "github.com/imagegenio/orchestrator/internal/domain/errors"
)

// RetryPolicy is an exponential-backoff wrapper around a single
// generation/edit/storage call. Retryability is decided entirely by the
// typed error hierarchy in internal/domain/errors.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including the first
	// one). 0 or 1 means no retries.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// OnRetry is an optional callback called before each retry.
	OnRetry func(attempt int, err error)
}

// ShouldRetry reports whether err is retryable. A typed error implementing
// Retryable() bool (see domainerrors.Retryable) is authoritative.
func (rp *RetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	return domainerrors.Retryable(err)
}

// GetDelay returns the exponential backoff delay before the given attempt,
// capped at MaxDelay.
func (rp *RetryPolicy) GetDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(rp.InitialDelay) * multiplier)

	if delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}
	return delay
}

// Execute runs fn, retrying on a retryable error until MaxAttempts is
// reached or ctx is cancelled.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	if rp.MaxAttempts <= 0 {
		rp.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= rp.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("execution cancelled: %w", ctx.Err())
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= rp.MaxAttempts || !rp.ShouldRetry(err) {
			break
		}

		if rp.OnRetry != nil {
			rp.OnRetry(attempt, err)
		}

		delay := rp.GetDelay(attempt)
		if delay > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("execution cancelled during retry delay: %w", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("all retry attempts failed: %w", lastErr)
}
