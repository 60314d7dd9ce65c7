// Package retry provides a bounded retry policy with exponential backoff,
// applied uniformly wherever the pipeline re-attempts a fallible operation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Initial is the delay before the second attempt.
	Initial time.Duration

	// Max caps the computed backoff delay.
	Max time.Duration

	// Multiplier grows the delay between attempts. Defaults to 2.
	Multiplier float64

	// Jitter adds up to ±25% randomization to each delay when set.
	Jitter bool

	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool
}

// DefaultPolicy retries three times with exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Initial:     time.Second,
		Max:         30 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}
}

// Do runs fn under the policy, sleeping between attempts. It returns nil on
// the first success, the last error once attempts are exhausted, or the
// context error if the context ends while waiting.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}

	var lastErr error
	delay := p.Initial

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := delay
		if p.Max > 0 && wait > p.Max {
			wait = p.Max
		}
		if p.Jitter && wait > 0 {
			jitter := float64(wait) * 0.25
			wait += time.Duration(rand.Float64()*2*jitter - jitter)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * mult)
	}

	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, lastErr)
}
