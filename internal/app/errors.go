package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrNotEnabled indicates an operation on a context that was never
	// enabled or has been disabled.
	ErrNotEnabled = errors.New("rendering not enabled for context")

	// ErrShutdown indicates the application has been shut down.
	ErrShutdown = errors.New("application shut down")
)

// OperationError reports a failed operation on one context.
type OperationError struct {
	Op      string
	Context int
	Err     error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	return fmt.Sprintf("%s context %d: %v", e.Op, e.Context, e.Err)
}

// Unwrap returns the underlying error.
func (e *OperationError) Unwrap() error {
	return e.Err
}
