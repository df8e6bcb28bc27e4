package indexer

import (
	"context"
	"errors"
	"time"

	"mintExchange/internal/chain"
)

const (
	defaultRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
)

// withRetry calls fn until it succeeds or maxRetries retries are spent, doubling
// the delay between attempts up to maxRetryDelay.
func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = min(delay*2, maxRetryDelay)
	}
}

// retryable is false for errors another attempt cannot fix within this pass:
// cancellation, and a provider asking us to back off.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return !chain.IsRateLimited(err)
}
