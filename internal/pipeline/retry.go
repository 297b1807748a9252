package pipeline

import (
	"context"
	"time"
)

// WithRetry runs op, retrying up to maxRetries additional times when
// retryable classifies the failure as transient. The delay between attempts
// is fixed; context cancellation cuts the wait short and returns the last
// error observed.
func WithRetry(ctx context.Context, maxRetries int, delay time.Duration, retryable func(error) bool, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= maxRetries || retryable == nil || !retryable(lastErr) {
			return lastErr
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}
