// internal/apperr/apperr.go

// Package apperr defines the client-facing error taxonomy shared by the room
// registry, matchmaking queue, presence directory and HTTP layer. Expected
// kinds (NotFound, Conflict, Forbidden, InvalidState) are never retried by the
// service itself; Unavailable is the only kind a caller should retry.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping and retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindForbidden
	KindInvalidState
	KindUnavailable
)

// Error carries a kind, a client-safe message and an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(msg string) error     { return &Error{Kind: KindNotFound, Msg: msg} }
func Conflict(msg string) error     { return &Error{Kind: KindConflict, Msg: msg} }
func Forbidden(msg string) error    { return &Error{Kind: KindForbidden, Msg: msg} }
func InvalidState(msg string) error { return &Error{Kind: KindInvalidState, Msg: msg} }

// Unavailable wraps a store failure so callers can distinguish "retry later"
// from expected rejections.
func Unavailable(msg string, err error) error {
	return &Error{Kind: KindUnavailable, Msg: msg, Err: err}
}

// KindOf extracts the kind from anywhere in the error chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Message returns the client-safe message, or a generic one for unknown errors.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Msg
	}
	return "internal error"
}

// HTTPStatus maps an error kind to its HTTP-equivalent status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
