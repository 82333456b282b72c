package inference

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// transientError marks a response worth retrying: a rate limit or a
// server-side failure.
type transientError struct {
	status int
	body   string
}

func (e *transientError) Error() string {
	return fmt.Sprintf("chat API error (status %d): %s", e.status, e.body)
}

// retryWithBackoff runs fn up to 1+maxRetries times with exponential
// backoff between attempts. Non-transient errors return immediately.
func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var te *transientError
		if !errors.As(lastErr, &te) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
