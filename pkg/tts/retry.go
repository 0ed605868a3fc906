package tts

import (
	"context"
	"time"
)

// RetryPolicy is an explicit, injectable retry policy: a bounded number of
// attempts with a backoff delay computed per attempt.
type RetryPolicy struct {
	// MaxAttempts is the total number of provider calls (first try
	// included). Values below 1 behave as 1.
	MaxAttempts int

	// Backoff returns the delay before retry number attempt+1.
	// attempt counts from 1. Nil means no delay.
	Backoff func(attempt int) time.Duration
}

// DefaultRetryPolicy retries three times with doubling delays starting at
// half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			return 500 * time.Millisecond << (attempt - 1)
		},
	}
}

// wait sleeps for the backoff delay after the given attempt, returning early
// with the context error if ctx is cancelled.
func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	if p.Backoff == nil {
		return nil
	}
	d := p.Backoff(attempt)
	if d <= 0 {
		return nil
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
