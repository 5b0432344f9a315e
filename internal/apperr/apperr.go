// Package apperr defines the error kinds the rental engine reports. Callers
// decide how to react by switching on Kind, never by inspecting messages.
package apperr

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error.
type Kind int

const (
	// KindInternal is any failure that was not classified.
	KindInternal Kind = iota
	// KindValidation is malformed input.
	KindValidation
	// KindNotFound is a missing locker, student, course or rental.
	KindNotFound
	// KindConflict is a precondition that no longer holds.
	KindConflict
	// KindTransient is a transaction abort or unreachable store. Safe to retry.
	KindTransient
	// KindInvariant is a consistency violation between lockers and rentals.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindTransient:
		return "TRANSIENT_ERROR"
	case KindInvariant:
		return "INVARIANT_VIOLATION"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is a classified error. Message is safe to show to API clients.
type Error struct {
	Kind    Kind
	Message string
	// Fields carries per-field reasons for validation errors.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a validation error with optional per-field reasons.
func Validation(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// NotFound returns a not-found error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict returns a conflict error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// Transient wraps a store failure that aborted the transaction.
func Transient(err error) *Error {
	return &Error{Kind: KindTransient, Message: "the request could not be completed, try again", Err: err}
}

// Invariant reports a consistency violation. A stack trace is captured so
// the violation can be logged with %+v.
func Invariant(format string, args ...any) *Error {
	return &Error{
		Kind:    KindInvariant,
		Message: "internal consistency error",
		Err:     errors.Errorf(format, args...),
	}
}

// KindOf returns the kind of err, or KindInternal if it is not classified.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
