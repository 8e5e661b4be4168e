package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates an execution run was not found.
	ErrRunNotFound = errors.New("execution run not found")

	// ErrRunAlreadyTerminal rejects writes to a run that already finished.
	ErrRunAlreadyTerminal = errors.New("execution run already terminal")

	// ErrInvalidTransition rejects a non-monotonic status change.
	ErrInvalidTransition = errors.New("invalid execution status transition")

	// ErrNodeAlreadyLogged rejects a second log entry for the same node in a run.
	ErrNodeAlreadyLogged = errors.New("node already logged for execution")

	// ErrConcurrentUpdate is returned when an optimistic write kept losing races.
	ErrConcurrentUpdate = errors.New("concurrent update of execution run")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// ExecutionError wraps execution-store errors with the run they concern.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates an execution run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsStateConflict reports errors caused by writing to a run in the wrong state.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrRunAlreadyTerminal) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrNodeAlreadyLogged)
}
