package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for API mapping. Clients need to tell "pick
// different dates" (Conflict) apart from "fix your form" (Validation).
type Kind string

const (
	Validation Kind = "validation"
	Conflict   Kind = "conflict"
	NotFound   Kind = "not_found"
	Forbidden  Kind = "forbidden"
	Upstream   Kind = "upstream"
	Internal   Kind = "internal"
)

// Error carries a public message safe to expose to clients and an internal
// message for logs only.
type Error struct {
	Kind     Kind
	Public   string
	internal string
	err      error
}

func (e *Error) Error() string {
	if e.internal != "" {
		return e.internal
	}
	return e.Public
}

func (e *Error) Unwrap() error { return e.err }

// StatusCode maps the error kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, public string) *Error {
	return &Error{Kind: kind, Public: public}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Public: fmt.Sprintf(format, args...)}
}

// Wrap keeps a client-safe message while preserving the cause for logs.
func Wrap(kind Kind, public string, err error) *Error {
	return &Error{
		Kind:     kind,
		Public:   public,
		internal: fmt.Sprintf("%s: %v", public, err),
		err:      err,
	}
}

// As extracts an *Error from an error chain, defaulting to Internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: Internal, Public: "internal error", internal: err.Error(), err: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
