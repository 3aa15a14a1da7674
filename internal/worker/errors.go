package worker

import (
	"errors"

	"bosun/internal/gateway"
	"bosun/internal/jobs"
	"bosun/internal/store"
)

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as one that redelivery cannot fix.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether a job failing with err should be dead-lettered
// instead of retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *fatalError
	return errors.As(err, &fe) ||
		errors.Is(err, jobs.ErrInvalidJob) ||
		errors.Is(err, store.ErrNotFound) ||
		gateway.IsAccessError(err)
}
