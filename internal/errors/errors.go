package errors

import (
	"errors"
	"fmt"
)

// Storage errors shared by every repository backend.
var (
	// ErrNotFound is returned when a record does not exist, has expired or has already been consumed.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness constraint.
	ErrConflict = errors.New("conflict")
	// ErrExhausted is returned when a bounded-use record has no uses left.
	ErrExhausted = errors.New("exhausted")
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
