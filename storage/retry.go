package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/mediastack/media-storage-backend/interfaces"
	"github.com/mediastack/media-storage-backend/metrics"
)

// transientError marks an error as eligible for retry.
type transientError struct {
	err error
}

func (e transientError) Error() string {
	return e.err.Error()
}

func (e transientError) Unwrap() error {
	return e.err
}

// Transient wraps an error to mark it as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

// IsTransient reports whether an error was marked retryable.
func IsTransient(err error) bool {
	var t transientError
	return errors.As(err, &t)
}

// RetryPolicy retries an operation on transient failures with capped
// exponential backoff and jitter. The zero value is not usable; construct
// with DefaultRetryPolicy and adjust fields as needed.
type RetryPolicy struct {
	// MaxAttempts is the total attempt budget, including the first try.
	MaxAttempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Jitter is the fraction (0..1) of random spread applied to each delay.
	Jitter float64

	// Retryable classifies errors. Nil means IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the policy shared by the network backends:
// 3 attempts, 250ms base delay doubling up to 5s, 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
	}
}

// Do runs fn until it succeeds, fails permanently, or the attempt budget is
// exhausted. Exhaustion surfaces as interfaces.ErrStorageUnavailable wrapping
// the last failure. Context cancellation aborts between attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		metrics.RetriesTotal.Inc()

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %d attempts failed, last: %v", interfaces.ErrStorageUnavailable, p.MaxAttempts, lastErr)
}

// delay computes the backoff before the retry following the given attempt.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d += (rand.Float64()*2 - 1) * spread
	}
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	if d < 0 {
		d = float64(p.BaseDelay)
	}
	return time.Duration(d)
}
