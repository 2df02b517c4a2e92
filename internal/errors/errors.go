// Package errors defines the structured error kinds surfaced by the
// control plane core. HTTP-facing collaborators translate kinds to
// status codes; the core itself never formats HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Base error values for errors.Is checks.
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvariant           = errors.New("invariant violation")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrValidation          = errors.New("validation failed")
	ErrTransient           = errors.New("transient failure")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInternal            = errors.New("internal error")
)

// Kind categorizes an error for propagation and status mapping.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindInvariant           Kind = "invariant"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindValidation          Kind = "validation"
	KindTransient           Kind = "transient"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInternal            Kind = "internal"
)

// Error is a structured error carrying the failed operation and kind.
type Error struct {
	Kind Kind
	Op   string // operation that failed (e.g., "store.GetDevice")
	Err  error  // underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is maps kinds onto the package-level sentinel errors.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrInvariant:
		return e.Kind == KindInvariant
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	case ErrForbidden:
		return e.Kind == KindForbidden
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrTransient:
		return e.Kind == KindTransient
	case ErrUpstreamUnavailable:
		return e.Kind == KindUpstreamUnavailable
	case ErrInternal:
		return e.Kind == KindInternal
	}
	return errors.Is(e.Err, target)
}

// E constructs a structured error. A nil err is replaced with the
// kind's sentinel so the result is always a usable error value.
func E(kind Kind, op string, err error) *Error {
	if err == nil {
		err = sentinel(kind)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef constructs a structured error from a format string.
func Ef(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the error is worth retrying.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindUpstreamUnavailable:
		return true
	}
	return false
}

// HTTPStatus maps an error kind to an HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindInvariant:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func sentinel(kind Kind) error {
	switch kind {
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindInvariant:
		return ErrInvariant
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	case KindValidation:
		return ErrValidation
	case KindTransient:
		return ErrTransient
	case KindUpstreamUnavailable:
		return ErrUpstreamUnavailable
	default:
		return ErrInternal
	}
}
