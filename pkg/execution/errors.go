package execution

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is the cause attached to a run context cancelled through Cancel.
	ErrCancelled = errors.New("execution cancelled")

	// ErrEngineClosed rejects work submitted after Close.
	ErrEngineClosed = errors.New("execution engine closed")
)

// SubmitError wraps failures that happen before a run exists: unknown workflows and
// invalid graphs.
type SubmitError struct {
	WorkflowID string
	Err        error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("cannot execute workflow %s: %v", e.WorkflowID, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
