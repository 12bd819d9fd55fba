package errors

import (
	"errors"
	"fmt"
)

// Common error types shared across the login and link flow
var (
	// Storage errors
	ErrNotFound = errors.New("not found")

	// State token errors
	ErrStateMissing  = errors.New("no state token stored")
	ErrStateEmpty    = errors.New("empty state parameter")
	ErrStateMismatch = errors.New("state parameter mismatch")

	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidSession   = errors.New("invalid session")

	// Guard errors
	ErrInvalidTransition = errors.New("invalid callback record transition")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
