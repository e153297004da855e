package common

import (
	"errors"
	"fmt"
)

// FatalError marks an error as non-retryable. The worker checks for it when
// deciding whether a failed job goes back to the queue or terminates.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps an error as non-retryable. Wrapping nil returns nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// Fatalf formats a non-retryable error
func Fatalf(format string, args ...interface{}) error {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err or any error in its chain is non-retryable
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
