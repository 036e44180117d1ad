package masking

import (
	"errors"
	"fmt"
)

// Kind classifies a failure that stops a provisioning request.
type Kind int

// Failure kinds. Per-table execution failures are not a Kind: they are
// recorded in the Outcome and never stop the request.
const (
	KindInternal Kind = iota
	KindBadRequest
	KindConnection
	KindBootstrap
	KindNotFound
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindConnection:
		return "connection"
	case KindBootstrap:
		return "bootstrap"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a fatal provisioning failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
