// Package apperr defines the error taxonomy shared by services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	// KindValidation marks bad or missing input.
	KindValidation Kind = "validation"
	// KindNotFound marks an absent entity.
	KindNotFound Kind = "not_found"
	// KindConflict marks a request that cannot apply to the entity's current state.
	KindConflict Kind = "conflict"
	// KindProvider marks a transcription or summary provider failure.
	KindProvider Kind = "provider"
	// KindInternal marks storage failures and anything unexpected.
	KindInternal Kind = "internal"
)

// Error carries a kind, an operation code for logs and a human-readable message.
type Error struct {
	kind    Kind
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	switch {
	case e.message != "" && e.err != nil:
		return fmt.Sprintf("%s: %v", e.message, e.err)
	case e.message != "":
		return e.message
	case e.err != nil:
		return fmt.Sprintf("%s: %v", e.code, e.err)
	default:
		return e.code
	}
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind reports the error classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Code reports the operation code, formatted as "<operation>.<reason>".
func (e *Error) Code() string {
	return e.code
}

// New builds an Error for the operation and reason.
func New(kind Kind, operation, reason, message string, cause error) error {
	return &Error{
		kind:    kind,
		code:    fmt.Sprintf("%s.%s", operation, reason),
		message: message,
		err:     cause,
	}
}

func Validation(operation, reason, message string) error {
	return New(KindValidation, operation, reason, message, nil)
}

func NotFound(operation, reason, message string) error {
	return New(KindNotFound, operation, reason, message, nil)
}

func Conflict(operation, reason, message string) error {
	return New(KindConflict, operation, reason, message, nil)
}

func Provider(operation, reason, message string, cause error) error {
	return New(KindProvider, operation, reason, message, cause)
}

func Internal(operation, reason string, cause error) error {
	return New(KindInternal, operation, reason, "", cause)
}

// KindOf returns the kind of the outermost Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindInternal
}

// CodeOf returns the operation code of the outermost Error in the chain.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
