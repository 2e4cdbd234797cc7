// Package retry provides a bounded retry policy for outbound network calls.
//
// Every remote call in the pipeline is wrapped by a Policy. The policy is
// deliberately simple: a fixed number of attempts with a fixed short delay
// between them, and no distinction between retryable and non-retryable
// failures. A bad status code, a malformed body, and a transport failure
// are all retried identically; on exhaustion the last observed error is
// returned.
package retry

import (
	"context"
	"time"
)

// DefaultDelay is the pause between attempts when a Policy does not set one.
const DefaultDelay = 150 * time.Millisecond

// Policy describes how many times a unit of work is attempted and how long
// to wait between attempts.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the fixed pause between attempts (DefaultDelay if zero).
	Delay time.Duration
}

// Attempts returns the effective attempt count (at least 1).
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// delay returns the effective inter-attempt delay.
func (p Policy) delay() time.Duration {
	if p.Delay <= 0 {
		return DefaultDelay
	}
	return p.Delay
}

// Do executes fn until it succeeds or the policy is exhausted.
//
// fn is called at most Attempts() times. After a failed attempt the policy
// sleeps for the configured delay before the next one; if ctx is cancelled
// during the sleep, the last observed error is returned immediately rather
// than starting another attempt.
//
// Returns nil on the first success, or the error from the final attempt.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := p.Attempts()

	for i := 0; i < attempts; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(p.delay())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		}
	}

	return lastErr
}

// Do executes fn under the policy and returns its typed result.
//
// It behaves exactly like Policy.Do: fn runs at most p.Attempts() times
// with a fixed delay between attempts, and the value and error of the
// final attempt are returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Do(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = fn(ctx)
		return callErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
