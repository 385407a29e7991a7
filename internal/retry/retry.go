package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Operation is a single network-facing unit of work. Implementations should
// bound the duration of one attempt (e.g. with an HTTP client timeout);
// retry delays are not a substitute for per-attempt timeouts.
type Operation[T any] func(ctx context.Context) (T, error)

// ExhaustedError is returned when all attempts of a retryable operation
// have failed. It wraps the last error and records the total attempt count.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do executes op under the given policy. Success returns immediately.
// A non-retryable failure propagates unchanged: it is permanent and the
// caller must not retry it elsewhere. A retryable failure sleeps for the
// policy's backoff delay and retries; once attempts are exhausted the last
// error is returned wrapped in an ExhaustedError.
func Do[T any](ctx context.Context, policy Policy, op Operation[T]) (T, error) {
	var zero T
	if err := policy.Validate(); err != nil {
		return zero, fmt.Errorf("invalid retry policy: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.IsRetryable(err) {
			return zero, err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.DelayFor(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, delay, err)
		}
		slog.Debug("retrying operation",
			"attempt", attempt+1,
			"max_attempts", policy.MaxAttempts,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	return zero, &ExhaustedError{Attempts: policy.MaxAttempts, Err: lastErr}
}
