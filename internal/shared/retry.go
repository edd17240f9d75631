package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy describes how often and how patiently an operation is retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries lock conflicts three times with
// exponential backoff: 100ms, 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 100 * time.Millisecond,
		Retryable: IsConflictError,
	}
}

// Retry runs fn until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done.
func Retry(ctx context.Context, op string, policy RetryPolicy, fn func() error) error {
	if policy.Attempts <= 0 {
		policy.Attempts = 1
	}
	if policy.Retryable == nil {
		policy.Retryable = IsConflictError
	}

	var err error
	for i := 0; i < policy.Attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !policy.Retryable(err) || i == policy.Attempts-1 {
			break
		}

		delay := policy.BaseDelay * time.Duration(1<<i)
		slog.Debug("Operation failed with a lock conflict, retrying",
			"op", op,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
