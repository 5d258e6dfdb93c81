package githubapi

import (
	"fmt"
	"time"
)

// NotFoundError indicates a 404 response. It is never retried; the caller
// decides whether a missing resource aborts the run or is skippable.
type NotFoundError struct {
	Method string
	Path   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: resource not found", e.Method, e.Path)
}

// PermissionError indicates a 403 response without a rate-limit signal.
// It usually means the token is missing required scopes and is fatal.
type PermissionError struct {
	Path string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("access denied for %s: the token needs the 'repo' and 'pull_requests' scopes", e.Path)
}

// RateLimitError indicates a 403 response caused by API rate limiting.
// RetryAfter is how long to wait before the request may be repeated.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// HTTPError is any other non-success response. These are treated as
// transient and retried with backoff.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
