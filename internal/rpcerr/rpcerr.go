// Package rpcerr classifies errors raised by the orchestration components
// into the kinds the JSON-RPC dispatcher maps to wire error codes. Nothing
// below this package should format a JSON-RPC error object directly; kinds
// are attached here and translated at the response boundary in rpcapi.
package rpcerr

import (
	"errors"
	"fmt"
)

// Kind is a coarse classification of failure, independent of JSON-RPC.
type Kind int

const (
	// Internal is the zero value: an unclassified, unrecoverable condition.
	Internal Kind = iota
	Validation
	NotFound
	ResourceExhausted
	Backend
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case ResourceExhausted:
		return "resource_exhausted"
	case Backend:
		return "backend"
	case Timeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Error wraps an underlying error with a Kind so callers upstream of the
// dispatcher can branch on failure category without string matching.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// New builds a kinded error from a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Wrap attaches a kind to an existing error, preserving it for errors.Is/As.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, msg: msg, err: err}
}

// Validationf builds a Validation-kind error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a NotFound-kind error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// ResourceExhaustedf builds a ResourceExhausted-kind error.
func ResourceExhaustedf(format string, args ...any) *Error {
	return New(ResourceExhausted, fmt.Sprintf(format, args...))
}

// Timeoutf builds a Timeout-kind error.
func Timeoutf(format string, args ...any) *Error {
	return New(Timeout, fmt.Sprintf(format, args...))
}

// Backendf builds a Backend-kind error wrapping an underlying cause.
func Backendf(cause error, format string, args ...any) *Error {
	return Wrap(Backend, fmt.Sprintf(format, args...), cause)
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not carry one (e.g. a bare error from a library call deep in the stack).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
