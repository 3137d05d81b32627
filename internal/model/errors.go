package model

import (
    "errors"
    "fmt"
)

// Kind classifies a reservation failure.  Handlers translate a Kind into an
// HTTP status; the service never retries any of them internally.
type Kind string

const (
    KindValidation   Kind = "validation"    // malformed input (bad dates, empty purpose)
    KindNotFound     Kind = "not_found"     // reservation, sub-record or equipment missing
    KindForbidden    Kind = "forbidden"     // caller is not the owner or lacks capability
    KindConflict     Kind = "conflict"      // overlapping window on the same equipment
    KindUnavailable  Kind = "unavailable"   // equipment not available or catalog unreachable
    KindInvalidState Kind = "invalid_state" // transition not allowed from current status
)

// Error is the error type returned by every lifecycle operation.  Two
// errors match under errors.Is when their kinds are equal, so callers can
// compare against the sentinel values below.
type Error struct {
    Kind    Kind
    Message string
    Cause   error
}

func (e *Error) Error() string {
    if e.Cause != nil {
        return fmt.Sprintf("%s: %v", e.Message, e.Cause)
    }
    return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
    t, ok := target.(*Error)
    if !ok {
        return false
    }
    return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons.
var (
    ErrValidation   = &Error{Kind: KindValidation, Message: "validation failed"}
    ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found"}
    ErrForbidden    = &Error{Kind: KindForbidden, Message: "forbidden"}
    ErrConflict     = &Error{Kind: KindConflict, Message: "conflict"}
    ErrUnavailable  = &Error{Kind: KindUnavailable, Message: "unavailable"}
    ErrInvalidState = &Error{Kind: KindInvalidState, Message: "invalid state"}
)

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
    return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
    return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind carried by err, or "" when err is not a
// reservation error.
func KindOf(err error) Kind {
    var e *Error
    if errors.As(err, &e) {
        return e.Kind
    }
    return ""
}
