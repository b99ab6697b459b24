// Package domainerrors defines coded domain errors shared by services and the
// HTTP layer. Services return these; transport translates codes to status
// codes via ToHTTPStatus so handlers never pick statuses ad hoc.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"

	"pulse-analytics/pkg/platform/sentinel"
)

// Code classifies a domain error.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeUnavailable  Code = "unavailable"
	CodeInternal     Code = "internal"
)

// Error is a domain error with a stable code and human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that preserves an underlying cause for logs
// while exposing only code and message to clients.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// FromStore translates a store error into a domain error using the sentinels
// stores wrap their failures with. Anything unclassified stays internal so
// driver details never reach clients.
func FromStore(message string, err error) *Error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return Wrap(CodeNotFound, message, err)
	case errors.Is(err, sentinel.ErrConflict):
		return Wrap(CodeConflict, message, err)
	case errors.Is(err, sentinel.ErrUnavailable):
		return Wrap(CodeUnavailable, message, err)
	default:
		return Wrap(CodeInternal, message, err)
	}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the client-safe message from err.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
