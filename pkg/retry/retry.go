// Package retry provides bounded retries with exponential backoff and
// jitter for calls to the remote validation service.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted is returned when all attempts fail. The last attempt's error
// is joined to it.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy configures retry behavior.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Delay is the wait before the second attempt.
	Delay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64

	// Jitter randomizes each delay by up to the given fraction (0-1).
	Jitter float64

	// RetryIf decides whether an error is worth retrying. Nil retries all.
	RetryIf func(error) bool
}

// DefaultPolicy returns the policy used for validation-service calls: two
// tries with a short backoff, so a transient network blip does not surface
// to the user while a real outage fails fast.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   2,
		Delay:      150 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, or the context is
// done.
func Do(ctx context.Context, policy Policy, fn func() error) error {
	_, err := DoWithResult(ctx, policy, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoWithResult runs fn until it returns a value, the policy is exhausted, or
// the context is done.
func DoWithResult[T any](ctx context.Context, policy Policy, fn func() (T, error)) (T, error) {
	var zero T

	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if policy.RetryIf != nil && !policy.RetryIf(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(policy.backoff(attempt)):
		}
	}

	return zero, errors.Join(ErrExhausted, lastErr)
}

func (p Policy) backoff(attempt int) time.Duration {
	delay := float64(p.Delay) * math.Pow(p.Multiplier, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		jitter := delay * p.Jitter
		delay = delay - jitter + rand.Float64()*2*jitter
	}
	return time.Duration(delay)
}
