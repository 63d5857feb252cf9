package activity

import (
	"errors"
	"fmt"
)

// TransientError marks a failure that may succeed on retry: network errors,
// 5xx responses, lock contention.
type TransientError struct {
	Err error
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Transientf(format string, args ...any) error {
	return &TransientError{Err: fmt.Errorf(format, args...)}
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure that retrying cannot fix: validation
// failures, 4xx responses, malformed input.
type PermanentError struct {
	Err error
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is retryable. Unclassified errors are
// treated as permanent so a buggy handler does not retry forever.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
