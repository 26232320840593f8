package training

import (
	"errors"
	"fmt"
)

// ErrSelfCheck is returned when the estimator about to be persisted produces
// a non-finite or out-of-range probability.
var ErrSelfCheck = errors.New("prediction self-check failed")

// ValidationError reports insufficient or malformed training data. Message
// is meant to be shown to the operator as is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// DependencyError reports that the numerical solver could not run.
type DependencyError struct {
	Stage string
	Err   error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("numerical dependency failed during %s: %v", e.Stage, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
