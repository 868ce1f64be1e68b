package engine

import (
	"fmt"
	"time"
)

// StepTimeoutError reports a leaf step whose agent call outlived its
// timeout. The in-flight call is cancelled when this is raised.
type StepTimeoutError struct {
	StepID  string
	Timeout time.Duration
	Err     error
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %q timed out after %s", e.StepID, e.Timeout)
}

func (e *StepTimeoutError) Unwrap() error {
	return e.Err
}
