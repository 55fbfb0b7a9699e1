// internal/apperr/apperr.go
//
// Tagged application errors.
// Services return *Error values carrying an explicit Kind; the HTTP layer maps
// the kind to a status code in one place (Status) instead of matching messages.

package apperr

import (
	"errors"
	"net/http"
	"time"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindUnauthorized
	KindRateLimited
	KindInsufficientBalance
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	case KindInsufficientBalance:
		return "insufficient_balance"
	default:
		return "internal"
	}
}

// Error is an error with a kind and a human-readable message.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration // only meaningful for KindRateLimited
	Err        error         // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }
func NotFound(msg string) *Error   { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) *Error   { return &Error{Kind: KindConflict, Message: msg} }
func Forbidden(msg string) *Error  { return &Error{Kind: KindForbidden, Message: msg} }

func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

func InsufficientBalance(msg string) *Error {
	return &Error{Kind: KindInsufficientBalance, Message: msg}
}

// RateLimited reports a cooldown or quota hit; retry is the remaining wait.
func RateLimited(msg string, retry time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: msg, RetryAfter: retry}
}

// Wrap attaches a kind and message to err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *Error { return Wrap(KindInternal, msg, err) }

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for untagged errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Status maps a kind to an HTTP status code.
func Status(k Kind) int {
	switch k {
	case KindValidation, KindInsufficientBalance:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
