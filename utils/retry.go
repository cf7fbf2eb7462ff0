package utils

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Sleeper suspends for d or until ctx is done. Tests inject a no-op.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryConfig holds the parameters for the back-off strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *Logger

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retried.
	Retryable func(error) bool
	// Sleep defaults to SleepContext.
	Sleep Sleeper
}

// Delay returns the wait before the given attempt (1-based).
// The schedule doubles from BaseDelay: 0, base, 2*base, 4*base...
func (r *RetryConfig) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	d := r.BaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Do executes fn with exponential back-off retry logic.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func(ctx context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := r.Delay(attempt)
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
					operationName, attempt-1, attempts, lastErr, delay)
			}
			if err := sleep(ctx, delay); err != nil {
				return eris.Wrapf(lastErr, "%s interrupted after %d attempts", operationName, attempt-1)
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return lastErr
		}
	}

	return eris.Wrapf(lastErr, "%s failed after %d attempts", operationName, attempts)
}
