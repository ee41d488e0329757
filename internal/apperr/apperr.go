// Package apperr defines the error-kind taxonomy used across the
// pipeline (§7): NotFound, Validation, Dependency, IO, State. Components
// return *Error instead of throwing, so that a bad item in a stream can
// be logged and skipped without unwinding the caller.
package apperr

import "errors"

// Kind classifies an error for callers that need to branch on it.
type Kind string

const (
	NotFound   Kind = "not_found"
	Validation Kind = "validation"
	Dependency Kind = "dependency"
	IO         Kind = "io"
	State      Kind = "state"
)

// Error is a typed, wrappable error carrying a Kind and a human-readable
// message, following the stdlib fs.PathError op/path/err wrapping idiom.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "alertrules.CreateRule"
	Message string
	Err     error // wrapped cause, if any
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error with no wrapped cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an *Error wrapping an underlying cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
