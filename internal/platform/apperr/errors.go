// Package apperr defines the error taxonomy surfaced by the control plane
// and used internally to classify failures without leaking stack traces.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping and logging.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindDependency Kind = "dependency"
	KindInternal   Kind = "internal"
)

// HTTPStatus maps a Kind to the status code the control plane should return.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the application-wide error type. Cause is kept for %w wrapping
// and logging but is never serialized to clients.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error             { return new_(KindValidation, message, nil) }
func Validationf(format string, a ...any) *Error    { return new_(KindValidation, fmt.Sprintf(format, a...), nil) }
func NotFound(message string) *Error                { return new_(KindNotFound, message, nil) }
func NotFoundf(format string, a ...any) *Error       { return new_(KindNotFound, fmt.Sprintf(format, a...), nil) }
func Conflict(message string) *Error                { return new_(KindConflict, message, nil) }
func Dependency(message string, cause error) *Error  { return new_(KindDependency, message, cause) }
func Internal(message string, cause error) *Error    { return new_(KindInternal, message, cause) }

// WithDetails attaches structured detail fields, returned verbatim to clients.
func (e *Error) WithDetails(d map[string]any) *Error {
	e.Details = d
	return e
}

// As extracts an *Error from err, matching the standard errors.As contract.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else KindInternal.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}
