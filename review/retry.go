package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// maxModelRetries is the number of times a transient model-API
	// failure is retried.
	maxModelRetries = 3

	// retryBaseDelay is the initial delay between retries (doubles each
	// attempt).
	retryBaseDelay = 1 * time.Second
)

// isRetryableError checks if an error is transient and worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		errors.Is(err, context.DeadlineExceeded)
}

// retryWithBackoff executes fn with exponential backoff on retryable errors.
func retryWithBackoff[T any](ctx context.Context, logger *slog.Logger, operation string, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt <= maxModelRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}

		if !isRetryableError(lastErr) {
			return result, lastErr
		}

		if attempt < maxModelRetries {
			delay := retryBaseDelay * time.Duration(1<<attempt)
			logger.Warn("retrying after transient error",
				"operation", operation,
				"attempt", attempt+1,
				"max_attempts", maxModelRetries+1,
				"delay", delay,
				"error", lastErr,
			)

			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return result, fmt.Errorf("max retries exceeded for %s: %w", operation, lastErr)
}
