package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	// ErrInvalidState is returned when an operation is illegal for the loan's current status.
	ErrInvalidState = errors.New("invalid_state")
	// ErrInsufficientFunds is returned when an account balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient_funds")

	ErrLoanNotFound    = fmt.Errorf("loan %w", ErrNotFound)
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)
)

// ValidationError reports malformed or missing input on a named field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid: " + e.Reason
	}
	return "invalid " + e.Field + ": " + e.Reason
}

// Unwrap lets errors.Is(err, ErrInvalid) match validation failures.
func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
