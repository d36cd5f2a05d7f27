package fn

import (
	"context"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetry is the retry budget for external model calls: one attempt
// plus three retries, exponential backoff from one second, capped at ten.
var DefaultRetry = RetryOpts{
	MaxAttempts: 4,
	InitialWait: time.Second,
	MaxWait:     10 * time.Second,
}

// Retry calls f up to MaxAttempts times with exponential backoff. The
// final error is returned unwrapped so callers can classify it.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	var result Result[T]
	wait := opts.InitialWait

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		if wait > opts.MaxWait {
			wait = opts.MaxWait
		}
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	return result
}
