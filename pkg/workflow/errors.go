package workflow

import "fmt"

// ValidationError reports the first structural problem found in a workflow
// document. Field is a dotted path into the document (for example
// "steps[2].branches").
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid workflow: %s", e.Message)
	}
	return fmt.Sprintf("invalid workflow: %s: %s", e.Field, e.Message)
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
