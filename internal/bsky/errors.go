package bsky

import (
	"fmt"
	"time"
)

// AuthError means the publish target rejected the credentials or session.
// Message comes from the server and never contains the app password.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("bsky: authentication failed (HTTP %d): %s", e.Status, e.Message)
}

// ValidationError is a user-correctable problem: bad local input, or a 4xx
// from the server other than auth and rate limiting.
type ValidationError struct {
	Field   string
	Status  int // 0 for local checks
	Message string
}

func (e *ValidationError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("bsky: invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("bsky: %s rejected (HTTP %d): %s", e.Field, e.Status, e.Message)
}

// RateLimitedError is returned on HTTP 429. The client never retries it.
type RateLimitedError struct {
	RetryAfter time.Duration // zero when the server gave no hint
	Message    string
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("bsky: rate limited, retry after %s: %s", e.RetryAfter, e.Message)
	}
	return "bsky: rate limited: " + e.Message
}

// TransportError wraps network failures, timeouts and 5xx responses.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("bsky: %s: %v", e.Op, e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }
