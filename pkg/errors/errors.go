// Package errors carries typed application errors. Each Code maps to an HTTP
// status and a public message; the message of the error itself stays internal
// unless the code allows details.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable   Code = "NUMBER_UNAVAILABLE"
	CodeQuota         Code = "QUOTA_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// MetadataFor describes how code surfaces to clients. Unknown codes are
// reported as internal errors.
func MetadataFor(code Code) Metadata {
	switch code {
	case CodeValidation:
		return clientError(http.StatusBadRequest, "validation failed", true)
	case CodeUnauthorized:
		return clientError(http.StatusUnauthorized, "authentication required", false)
	case CodeForbidden:
		return clientError(http.StatusForbidden, "access denied", false)
	case CodeNotFound:
		return clientError(http.StatusNotFound, "resource not found", false)
	case CodeConflict:
		return clientError(http.StatusConflict, "conflict detected", false)
	case CodeStateConflict:
		return clientError(http.StatusUnprocessableEntity, "state transition disallowed", true)
	case CodeIdempotency:
		return clientError(http.StatusConflict, "idempotency key reused", true)
	case CodeRateLimit:
		return clientError(http.StatusTooManyRequests, "rate limit exceeded", false)
	case CodeUnavailable:
		return clientError(http.StatusConflict, "number unavailable", true)
	case CodeQuota:
		return clientError(http.StatusConflict, "maximum quantity reached", true)
	case CodeDependency:
		return Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true}
	}
	return Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}
}

// Client errors are never worth retrying unchanged.
func clientError(status int, public string, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, DetailsAllowed: details}
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Code is CodeInternal on a nil *Error.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

// Message is the caller-facing text, shown only for client errors.
func (e *Error) Message() string {
	if e != nil {
		return e.message
	}
	return ""
}

func (e *Error) Details() any {
	if e != nil {
		return e.details
	}
	return nil
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	text := string(e.code) + ": " + e.message
	if e.cause != nil {
		text += ": " + e.cause.Error()
	}
	return text
}

func (e *Error) Unwrap() error {
	if e != nil {
		return e.cause
	}
	return nil
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	for typed := As(err); typed != nil; typed = As(typed.cause) {
		if typed.code == code {
			return true
		}
	}
	return false
}

// IsRetryable reports whether retrying might succeed. Untyped errors are
// treated as transient.
func IsRetryable(err error) bool {
	switch typed := As(err); {
	case err == nil:
		return false
	case typed == nil:
		return true
	default:
		return MetadataFor(typed.code).Retryable
	}
}
