// Package apperr defines the error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

type Kind string

const (
	KindConflict        Kind = "conflict"
	KindValidation      Kind = "validation"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindTooManyRequests Kind = "too_many_requests"
	KindInternal        Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindConflict:        http.StatusConflict,
	KindValidation:      http.StatusBadRequest,
	KindUnauthorized:    http.StatusUnauthorized,
	KindForbidden:       http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindTooManyRequests: http.StatusTooManyRequests,
	KindInternal:        http.StatusInternalServerError,
}

const internalMessage = "Internal server error"

// Error is a user-facing failure. Message is safe to render; Err is the
// underlying cause and is only exposed in non-production stack output.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Status() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Conflict(msg string) *Error        { return newError(KindConflict, msg) }
func Validation(msg string) *Error      { return newError(KindValidation, msg) }
func Unauthorized(msg string) *Error    { return newError(KindUnauthorized, msg) }
func Forbidden(msg string) *Error       { return newError(KindForbidden, msg) }
func NotFound(msg string) *Error        { return newError(KindNotFound, msg) }
func TooManyRequests(msg string) *Error { return newError(KindTooManyRequests, msg) }

// Internal wraps an unexpected failure. The cause keeps a stack trace so the
// non-production error renderer can print it with %+v.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: internalMessage, Err: pkgerrors.WithStack(err)}
}

// From returns err as an *Error, wrapping anything else as Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
