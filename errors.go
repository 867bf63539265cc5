// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package taskwatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is the zero Kind.
	KindUnknown Kind = iota
	// KindConnectFailed means the real-time channel could not be opened.
	KindConnectFailed
	// KindDecode means a frame or response body was malformed.
	KindDecode
	// KindStartFailed means the server rejected the task creation request.
	KindStartFailed
	// KindRateLimited means the server answered 429.
	KindRateLimited
	// KindTransientServer means the server answered 5xx or the network failed.
	KindTransientServer
	// KindFatalServer means the server answered a 4xx other than 401, 403 and 429.
	KindFatalServer
	// KindUnauthorized means the server rejected the credentials.
	KindUnauthorized
	// KindTimedOut means the overall monitoring deadline elapsed.
	KindTimedOut
	// KindCancelled means the caller cancelled the operation.
	KindCancelled
	// KindTaskFailed means the task itself reached the error state.
	KindTaskFailed
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindConnectFailed:
		return "connect failed"
	case KindDecode:
		return "decode error"
	case KindStartFailed:
		return "start failed"
	case KindRateLimited:
		return "rate limited"
	case KindTransientServer:
		return "transient server error"
	case KindFatalServer:
		return "fatal server error"
	case KindUnauthorized:
		return "unauthorized"
	case KindTimedOut:
		return "timed out"
	case KindCancelled:
		return "cancelled"
	case KindTaskFailed:
		return "task failed"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per Kind, for use with errors.Is.
var (
	ErrConnectFailed   = &Error{Kind: KindConnectFailed}
	ErrDecode          = &Error{Kind: KindDecode}
	ErrStartFailed     = &Error{Kind: KindStartFailed}
	ErrRateLimited     = &Error{Kind: KindRateLimited}
	ErrTransientServer = &Error{Kind: KindTransientServer}
	ErrFatalServer     = &Error{Kind: KindFatalServer}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrTimedOut        = &Error{Kind: KindTimedOut}
	ErrCancelled       = &Error{Kind: KindCancelled}
	ErrTaskFailed      = &Error{Kind: KindTaskFailed}
)

// Error represents a classified task tracking failure.
type Error struct {
	Kind    Kind
	Message string
	// StatusCode is the HTTP status that produced the error, if any.
	StatusCode int
	// RetryAfter is the server supplied Retry-After hint, if any.
	RetryAfter time.Duration
	// Problem holds the decoded problem details body, if any.
	Problem *ProblemDetails
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "taskwatch: " + e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for Error by comparing kinds.
func (e *Error) Is(target error) bool {
	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.Kind == targetErr.Kind
	}
	return false
}

// Retryable reports whether restarting the whole flow may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTransientServer, KindTimedOut:
		return true
	default:
		return false
	}
}

// Suggestion returns a user facing recovery hint. It is empty for kinds a
// retry cannot fix.
func (e *Error) Suggestion() string {
	switch e.Kind {
	case KindRateLimited:
		return "The server is busy. Please try again in a moment."
	case KindTransientServer:
		return "This appears to be a server issue. Please try again later."
	case KindTimedOut:
		return "Generation is taking longer than expected. Please try again."
	default:
		return ""
	}
}

// NewError creates a new Error with the given kind and message.
func NewError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error with the given kind, message, and cause.
func NewErrorWithCause(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err carries a retryable Kind.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// KindForStatus maps a non-2xx HTTP status code onto a Kind.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindUnauthorized
	case code >= 500 && code <= 599:
		return KindTransientServer
	default:
		return KindFatalServer
	}
}

// FromContext converts a context error into a Cancelled or TimedOut Error.
// Other errors are returned unchanged.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return NewErrorWithCause(KindCancelled, "operation cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewErrorWithCause(KindTimedOut, "deadline exceeded", err)
	default:
		return err
	}
}
