// Package errors provides shared sentinel errors used throughout the registrar.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = stderrors.New("not found")

	// ErrClosed indicates the resource has been closed.
	ErrClosed = stderrors.New("closed")

	// ErrInvalidInput indicates the input is invalid.
	ErrInvalidInput = stderrors.New("invalid input")

	// ErrAlreadyExists indicates the resource already exists.
	ErrAlreadyExists = stderrors.New("already exists")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = stderrors.New("timeout")

	// ErrUnauthorized indicates the caller lacks the role required by an operation.
	ErrUnauthorized = stderrors.New("unauthorized")

	// ErrInvalidState indicates an operation was attempted in the wrong lifecycle state.
	ErrInvalidState = stderrors.New("invalid state")

	// ErrInvalidValue indicates a value argument is out of range.
	ErrInvalidValue = stderrors.New("invalid value")

	// ErrInsufficientFunds indicates a balance or allowance is too small.
	ErrInsufficientFunds = stderrors.New("insufficient funds")

	// ErrIntegrity indicates a commitment does not match its revealed preimage.
	ErrIntegrity = stderrors.New("integrity violation")
)

// Revert is a contract call failure. It unwraps to its Kind sentinel so
// callers can branch with errors.Is.
type Revert struct {
	Contract string
	Op       string
	Kind     error
	Reason   string
}

func (e *Revert) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s.%s: %v", e.Contract, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s.%s: %v: %s", e.Contract, e.Op, e.Kind, e.Reason)
}

func (e *Revert) Unwrap() error {
	return e.Kind
}

// Reverted builds a Revert with a formatted reason.
func Reverted(contract, op string, kind error, format string, args ...any) *Revert {
	return &Revert{Contract: contract, Op: op, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }
