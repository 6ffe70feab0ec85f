package utils

import (
	"context"
	"fmt"
	"time"
)

// Backoff is capped exponential backoff: the wait before retry k (k >= 1)
// is Base * 2^(k-1), never more than Max.
//
//	Base=1s Max=30s → 1s, 2s, 4s, 8s, 16s, 30s, 30s...
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		if d >= b.Max || d > b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// RetryState describes one failed attempt that is about to be retried.
type RetryState struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

// ExhaustedError is returned once the retry budget for an error is spent.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed, last error: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retry calls fn until it succeeds or the error's budget runs out.
//
// budget(err) says how many retries that kind of error gets. Zero means
// return err immediately without retrying. onRetry, if set, sees every
// retry before the wait. Waits honour ctx.
//
// Usage:
//
//	err := utils.Retry(ctx, backoff, budget, nil, func(attempt int) error {
//	    return fetchPage(ctx, url)
//	})
func Retry(ctx context.Context, b Backoff, budget func(error) int, onRetry func(RetryState), fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		limit := budget(err)
		if limit <= 0 {
			return err
		}
		if attempt > limit {
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		wait := b.Delay(attempt)
		if onRetry != nil {
			onRetry(RetryState{Attempt: attempt, Delay: wait, Err: err})
		}
		if err := Sleep(ctx, wait); err != nil {
			return err
		}
	}
}
