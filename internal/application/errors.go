package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated is returned when no valid session backs the call.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrForbidden is returned when the acting principal lacks permission for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict is returned when the operation collides with existing state.
	ErrConflict = errors.New("application: conflict")
	// ErrBadRequest is returned when the request cannot be applied in the current state.
	ErrBadRequest = errors.New("application: bad request")

	ErrInvalidCredentials   = fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	ErrAccountDisabled      = fmt.Errorf("%w: account disabled", ErrUnauthenticated)
	ErrSessionExpired       = fmt.Errorf("%w: session expired", ErrUnauthenticated)
	ErrSessionRevoked       = fmt.Errorf("%w: session revoked", ErrUnauthenticated)
	ErrInvalidTwoFactorCode = fmt.Errorf("%w: invalid two-factor code", ErrUnauthenticated)
)

// Kind is the wire-level error classification.
type Kind string

const (
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindBadRequest      Kind = "BAD_REQUEST"
	KindForbidden       Kind = "FORBIDDEN"
	KindConflict        Kind = "CONFLICT"
	KindNotFound        Kind = "NOT_FOUND"
	KindTooManyRequests Kind = "TOO_MANY_REQUESTS"
	KindInternal        Kind = "INTERNAL_SERVER_ERROR"
)

// RequestError is a classified error with a caller-facing message.
type RequestError struct {
	Kind    Kind
	Message string
}

// NewRequestError constructs a RequestError.
func NewRequestError(kind Kind, format string, args ...any) *RequestError {
	return &RequestError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes the sentinel matching the kind so errors.Is keeps working.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case KindUnauthorized:
		return ErrUnauthenticated
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindBadRequest:
		return ErrBadRequest
	}
	return nil
}

func badRequest(format string, args ...any) error {
	return NewRequestError(KindBadRequest, format, args...)
}

func forbidden(format string, args ...any) error {
	return NewRequestError(KindForbidden, format, args...)
}

func notFound(format string, args ...any) error {
	return NewRequestError(KindNotFound, format, args...)
}

func conflict(format string, args ...any) error {
	return NewRequestError(KindConflict, format, args...)
}

// KindOf classifies err for the transport. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Kind != "" {
		return reqErr.Kind
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return KindBadRequest
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest
	}
	return KindInternal
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// errOrNil returns v as an error only when it carries field errors.
func (v *ValidationError) errOrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
