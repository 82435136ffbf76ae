// Package retry executes operations with exponential backoff and jitter.
//
// Failures are classified through the operr taxonomy: non-recoverable
// errors fail immediately, recoverable ones are retried until the policy
// is exhausted. Error kinds may carry a fixed retry-delay hint which
// overrides the policy's base delay for that specific failure.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/mbegale/dwellio-core/internal/operr"
)

// Policy holds backoff configuration.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// MaxRetries=3 bounds the total tries at 4.
	MaxRetries int

	// BaseDelay is the first backoff delay, doubled on each retry.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay before jitter.
	MaxDelay time.Duration

	// JitterFraction adds a uniformly random extra delay of up to this
	// fraction of the computed delay. Zero disables jitter.
	JitterFraction float64
}

// DefaultPolicy returns the policy used by the command pipeline.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.2,
	}
}

// Do executes op, retrying recoverable failures per the policy.
//
// Non-recoverable errors (invalid credentials, not-found, unsupported
// commands) fail immediately without a retry. After MaxRetries recoverable
// failures the last error is surfaced. Backoff sleeps respect the context;
// cancellation surfaces ctx.Err() without masking an in-flight result.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !operr.IsRecoverable(err) {
			return zero, err
		}
		if attempt == p.MaxRetries {
			break
		}

		delay := Delay(p, attempt, operr.RetryDelayOf(err))
		if p.JitterFraction > 0 {
			delay += time.Duration(rand.Float64() * p.JitterFraction * float64(delay)) //nolint:gosec // jitter needs no cryptographic randomness
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// Delay computes the pre-jitter backoff delay for the given attempt.
// A non-zero hint (the failing error kind's fixed retry-delay) replaces
// the policy's base delay. Attempt counts from zero.
func Delay(p Policy, attempt int, hint time.Duration) time.Duration {
	base := p.BaseDelay
	if hint > 0 {
		base = hint
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
