// internal/common/retry/policy.go

// Package retry provides the explicit retry policy applied uniformly to the
// interpretation, render and delivery calls.
package retry

import (
	"context"
	"time"
)

// Policy describes bounded retries with exponential backoff. The zero value
// performs a single attempt with no backoff.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Default matches the pipeline-wide baseline: one retry, 100ms initial backoff.
func Default() Policy {
	return Policy{
		MaxRetries:     1,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Backoff returns the sleep preceding the given retry attempt (attempt >= 1).
func (p Policy) Backoff(attempt int) time.Duration {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	backoff := time.Duration(1<<(attempt-1)) * initial
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

// Do runs fn up to MaxRetries+1 times. Between attempts it sleeps the
// exponential backoff, abandoning the wait when ctx ends. isRetryable decides
// whether a failure is worth another attempt; a nil predicate retries
// everything. The last error is returned once attempts are exhausted.
func (p Policy) Do(ctx context.Context, isRetryable func(error) bool, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.Backoff(attempt)):
				// Continue with retry
			case <-ctx.Done():
				return lastErr
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if ctx.Err() != nil {
			return lastErr
		}

		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// Attempts is the total number of calls Do may make.
func (p Policy) Attempts() int {
	return p.MaxRetries + 1
}
