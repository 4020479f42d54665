// Package apperr defines the application error taxonomy shared by the core
// components and mapped to transport status codes at the edge.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	// Internal is the default for unclassified failures (storage, I/O).
	Internal Kind = iota
	// Unauthenticated means the credential is missing or invalid.
	Unauthenticated
	// Forbidden means the credential is valid but the principal lacks the
	// permission, entity membership, or assignee role the operation needs.
	Forbidden
	// InvalidInput means a required field is missing or malformed.
	InvalidInput
	// NotFound means a referenced record does not exist.
	NotFound
	// Conflict is reserved for optimistic-concurrency retries.
	Conflict
)

// Error is a kinded application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
