package fewshot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Protocol-Lattice/go-fewshot/pkg/models"
)

// RetryPolicy retries a whole operation a fixed number of times.
type RetryPolicy struct {
	// MaxAttempts counts the first call; values below 1 mean 1.
	MaxAttempts int
	// Delay is the wait before the second attempt.
	Delay time.Duration
	// Multiplier grows Delay after every failed attempt. 0 and 1 keep it fixed.
	Multiplier float64
	// Retryable decides whether err is worth another attempt. nil retries
	// everything except cancellation, invalid input and unsupported media.
	Retryable func(error) bool
	// Sleep waits for d or until ctx is done. nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Logger receives one line per failed attempt. nil is silent.
	Logger *log.Logger
}

// DefaultRetryPolicy is three attempts spaced by a fixed minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 60 * time.Second}
}

// RetryError is returned once every attempt has failed.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("giving up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error { return e.Err }

// Retry calls fn until it succeeds, the error is not retryable, ctx ends or
// the attempts run out. Errors that stop the loop early are returned as is,
// joined with the context error when ctx ended.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = defaultRetryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	delay := p.Delay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if cerr := ctx.Err(); cerr != nil {
			if errors.Is(err, cerr) {
				return zero, err
			}
			return zero, errors.Join(err, cerr)
		}
		if !retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}
		if p.Logger != nil {
			p.Logger.Printf("attempt %d/%d failed: %v; retrying in %s", attempt, attempts, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, &RetryError{Attempts: attempt, Err: errors.Join(lastErr, err)}
		}
		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}
	return zero, &RetryError{Attempts: attempts, Err: lastErr}
}

func defaultRetryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrInvalidEntity),
		errors.Is(err, models.ErrUnsupportedMedia):
		return false
	default:
		return true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
