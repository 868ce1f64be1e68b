package httpclient

import "fmt"

// RetryExhaustedError reports that every attempt for a request failed with a
// retryable status. The final response (if any) is returned alongside it.
type RetryExhaustedError struct {
	StatusCode int
	Attempts   int
	Err        error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("HTTP %d after %d attempts: %v", e.StatusCode, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}
