package transport

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy classifies a connect/scan failure into a backoff delay
// and decides whether SessionSupervisor should keep retrying at all.
// The delay buckets are fixed per failure class rather than
// exponential, matching the lock firmware's own expectation that a
// scan throttle or missing characteristic needs a fixed platform-level
// cooldown rather than escalating backoff.
type RetryPolicy struct {
	// KeepConnection makes retries unbounded; otherwise the policy
	// gives up after MaxAttempts consecutive failures.
	KeepConnection bool
	MaxAttempts    int
}

// DefaultMaxAttempts is the retry budget used when KeepConnection is
// false.
const DefaultMaxAttempts = 3

// NewRetryPolicy builds a RetryPolicy with the standard attempt
// budget.
func NewRetryPolicy(keepConnection bool) RetryPolicy {
	return RetryPolicy{KeepConnection: keepConnection, MaxAttempts: DefaultMaxAttempts}
}

// Delay returns the backoff to wait before the next attempt, given the
// error the previous attempt produced.
func (p RetryPolicy) Delay(err error) time.Duration {
	switch {
	case errors.Is(err, ErrScanThrottled):
		return 15 * time.Second
	case errors.Is(err, ErrCharNotFound):
		return 15 * time.Second
	default:
		return 1 * time.Second
	}
}

// ShouldRetry reports whether attempt number n (1-based, the attempt
// that just failed) should be followed by another attempt.
func (p RetryPolicy) ShouldRetry(n int) bool {
	if p.KeepConnection {
		return true
	}
	return n < p.MaxAttempts
}

// Run drives fn under the policy, sleeping Delay(err) between failed
// attempts and returning the last error once retries are exhausted or
// ctx is done. fn is expected to return one of this package's sentinel
// errors so Delay can classify it correctly.
func Run(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !policy.ShouldRetry(attempt) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(policy.Delay(err)):
		}
	}
}
