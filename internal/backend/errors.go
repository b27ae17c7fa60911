package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind classifies a backend failure for retry and state-machine decisions.
type Kind int

const (
	// KindUnknown is the non-retryable last resort.
	KindUnknown Kind = iota
	// KindUnavailable is a connection-level failure (refused, DNS, reset).
	// Retryable; flips the orchestrator to degraded mode.
	KindUnavailable
	// KindTimeout is a deadline expiry. Retryable; only implies degradation
	// when it happens during a health probe.
	KindTimeout
	// KindNotFound is a semantic miss (unknown bank or fact id). Not retryable.
	KindNotFound
	// KindValidation is a caller mistake rejected by the backend. Not retryable.
	KindValidation
	// KindRateLimited is a 429; retryable, honoring Retry-After when present.
	KindRateLimited
	// KindServer is a 5xx. Retryable.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server_error"
	default:
		return "unknown"
	}
}

// Error is a classified backend failure.
type Error struct {
	Kind    Kind
	Op      string // e.g. "retain", "health"
	Status  int    // HTTP status when applicable, 0 otherwise
	Message string
	// RetryAfter is the backend's hint from a 429, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("backend %s: %s (%d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("backend %s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the backoff policy may retry this error.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUnavailable, KindTimeout, KindRateLimited, KindServer:
		return true
	}
	return false
}

// KindOf extracts the Kind from err, or KindUnknown if err is not a
// backend error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is a retryable backend error.
func Retryable(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Retryable()
	}
	return false
}

// Classify maps a transport-level error (no HTTP response) to an Error.
// Deadline expiry becomes KindTimeout; everything else that failed on the
// wire becomes KindUnavailable.
func Classify(op string, err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindUnavailable, Op: op, Err: err}
}

func statusError(op string, status int, msg string, retryAfter time.Duration) *Error {
	e := &Error{Op: op, Status: status, Message: msg}
	switch {
	case status == 404:
		e.Kind = KindNotFound
	case status == 429:
		e.Kind = KindRateLimited
		e.RetryAfter = retryAfter
	case status >= 400 && status < 500:
		e.Kind = KindValidation
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindUnknown
	}
	return e
}
