// Package resilience provides the error taxonomy and retry policy shared by
// the sourcing and generation pipeline.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
	"time"
)

// Category buckets an error by its retry policy.
type Category string

const (
	// CategoryTransient: timeouts, 5xx, connection resets. Retry with backoff.
	CategoryTransient Category = "transient"
	// CategoryRateLimit: 429/quota. Retry after a longer enforced delay.
	CategoryRateLimit Category = "rate_limit"
	// CategoryPermanent: validation, not-found, auth. Never retried.
	CategoryPermanent Category = "permanent"
	// CategoryExternal: provider-specific discovery/enrichment/generation
	// failures. Retry with moderate delay, then degrade to the next fallback.
	CategoryExternal Category = "external_service"
	// CategoryInternal: unexpected. Logged in full server-side; only a generic
	// message crosses the trust boundary.
	CategoryInternal Category = "internal"
)

// Default per-category retry delays.
const (
	TransientDelay = 1 * time.Second
	RateLimitDelay = 5 * time.Second
	ExternalDelay  = 2 * time.Second
)

// ClassifiedError wraps an error with its retry category and optional
// transport metadata.
type ClassifiedError struct {
	Err        error
	Category   Category
	StatusCode int
	RetryAfter time.Duration // rate-limit hint; zero when the provider gave none
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable with an optional HTTP status code.
func Transient(err error, statusCode int) *ClassifiedError {
	return &ClassifiedError{Err: err, Category: CategoryTransient, StatusCode: statusCode}
}

// RateLimited wraps err as a quota failure carrying a Retry-After hint.
func RateLimited(err error, retryAfter time.Duration) *ClassifiedError {
	return &ClassifiedError{Err: err, Category: CategoryRateLimit, StatusCode: 429, RetryAfter: retryAfter}
}

// Permanent wraps err as never-retryable.
func Permanent(err error) *ClassifiedError {
	return &ClassifiedError{Err: err, Category: CategoryPermanent}
}

// External wraps a provider-specific failure.
func External(err error) *ClassifiedError {
	return &ClassifiedError{Err: err, Category: CategoryExternal}
}

// Internal wraps an unexpected failure.
func Internal(err error) *ClassifiedError {
	return &ClassifiedError{Err: err, Category: CategoryInternal}
}

// transientPatterns are string heuristics for wrapped errors from HTTP
// clients that lose their type through wrapping.
var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"no such host",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"transport connection broken",
}

// Classify returns the retry category for err. Explicit classifications in
// the error chain win; network-level timeout/reset errors are transient;
// everything else is internal.
func Classify(err error) Category {
	if err == nil {
		return CategoryInternal
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return CategoryTransient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return CategoryTransient
		}
	}

	return CategoryInternal
}

// Retryable reports whether err may be retried at all.
func Retryable(err error) bool {
	switch Classify(err) {
	case CategoryTransient, CategoryRateLimit, CategoryExternal:
		return true
	default:
		return false
	}
}

// Delay returns the default retry delay for err's category. Rate limits honor
// a provider Retry-After hint when it exceeds the default.
func Delay(err error) time.Duration {
	switch Classify(err) {
	case CategoryTransient:
		return TransientDelay
	case CategoryRateLimit:
		if hint := RetryAfterHint(err); hint > RateLimitDelay {
			return hint
		}
		return RateLimitDelay
	case CategoryExternal:
		return ExternalDelay
	default:
		return 0
	}
}

// RetryAfterHint extracts the provider Retry-After hint from the error chain,
// or zero if none was given.
func RetryAfterHint(err error) time.Duration {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// FromStatus classifies err by its HTTP status code.
func FromStatus(err error, statusCode int) *ClassifiedError {
	switch {
	case statusCode == 429:
		return RateLimited(err, 0)
	case statusCode == 408 || statusCode >= 500:
		return Transient(err, statusCode)
	case statusCode >= 400:
		return Permanent(err)
	default:
		return Internal(err)
	}
}

// ExternalMessage returns the error text safe to surface across the trust
// boundary. Internal errors yield a generic message; provider detail stays in
// server-side logs.
func ExternalMessage(err error) string {
	if err == nil {
		return ""
	}
	if Classify(err) == CategoryInternal {
		return "internal error"
	}
	return err.Error()
}
