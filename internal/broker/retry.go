package broker

import (
	"context"
	"time"

	"aide/internal/types"
)

// RetryOptions tunes the exponential-backoff retry primitive.
type RetryOptions struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Base         float64
}

// DefaultRetryOptions matches the provider-call defaults: three retries,
// 1s initial delay doubling up to 60s.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Base:         2,
	}
}

// Retry runs fn, retrying only classified transport and rate-limit errors.
// Rate-limit errors get a longer backoff. After MaxRetries the last error
// is returned unchanged.
func Retry(ctx context.Context, opts RetryOptions, fn func() error) error {
	delay := opts.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * opts.Base)
			if delay > opts.MaxDelay {
				delay = opts.MaxDelay
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !types.IsRetryable(lastErr) {
			return lastErr
		}
		if types.KindOf(lastErr) == types.ErrKindRateLimit {
			// Rate limits need room to clear; double the next wait.
			doubled := delay * 2
			if doubled > opts.MaxDelay {
				doubled = opts.MaxDelay
			}
			delay = doubled
		}
	}
	return lastErr
}
