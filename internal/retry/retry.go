package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// Retry executes fn with exponential backoff until it succeeds, maxAttempts is
// reached or ctx is done. The backoff doubles after each failed attempt starting
// from initialBackoff. Non-retryable errors (like 401, 404) return immediately.
func Retry(ctx context.Context, fn func() error, maxAttempts int, initialBackoff time.Duration) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) && !IsRateLimited(lastErr) {
			return lastErr
		}

		// Don't sleep after the last attempt
		if attempt < maxAttempts {
			timer := time.NewTimer(Backoff(attempt, initialBackoff, lastErr))
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}

	return lastErr
}

// Backoff returns the wait before the attempt following the given one.
// Rate limited errors wait twice as long.
func Backoff(attempt int, initialBackoff time.Duration, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := initialBackoff * time.Duration(1<<(attempt-1))
	if IsRateLimited(err) {
		backoff *= 2
	}
	return backoff
}

// IsRetryable returns true if the error is a transient error that should be retried.
// This includes network timeouts, dropped connections and 5xx server errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// A cancelled caller is never worth another attempt
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.HTTPStatus() >= http.StatusInternalServerError
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "unexpected EOF") {
		return true
	}

	return false
}

// IsRateLimited returns true if the error indicates rate limiting (HTTP 429).
func IsRateLimited(err error) bool {
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.HTTPStatus() == http.StatusTooManyRequests
	}
	return false
}
