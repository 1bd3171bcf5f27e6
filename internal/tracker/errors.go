package tracker

import (
	"fmt"
	"time"
)

// AuthError reports rejected credentials (HTTP 401). Not retried.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("tracker authentication failed (%d): %s", e.Status, e.Body)
}

// ForbiddenError reports insufficient tracker permissions (HTTP 403).
// Not retried.
type ForbiddenError struct {
	Status int
	Body   string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("tracker authorization failed (%d): %s", e.Status, e.Body)
}

// APIError reports a non-retryable client error (other 4xx).
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker API returned %d: %s", e.Status, e.Body)
}

// RateLimitError reports that 429 responses persisted past max retries.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("tracker rate limit exceeded (retry after %s)", e.RetryAfter)
}

// ServiceError reports tracker 5xx or network failures after retries
// were exhausted.
type ServiceError struct {
	Status int // 0 for network errors
	Cause  error
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("tracker service error (%d): %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("tracker unreachable: %v", e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }
