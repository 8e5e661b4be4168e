// Package persistence provides the storage abstraction for workflows and execution runs.
package persistence

import (
	"context"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow graphs.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	// GetByID returns ErrWorkflowNotFound for unknown ids.
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository is the execution store. Implementations serialize writers per
// execution id so node logs stay append-only and status changes stay monotonic.
type ExecutionRepository interface {
	// CreateRun stores run, or returns the live run already registered for the same
	// (workflow, owner, idempotency key). The boolean is true when run was stored.
	// A failed run under the key is replaced by the new one.
	CreateRun(ctx context.Context, run *models.ExecutionRun) (*models.ExecutionRun, bool, error)

	// AppendNodeLog fails with ErrRunNotFound, ErrRunAlreadyTerminal or ErrNodeAlreadyLogged.
	AppendNodeLog(ctx context.Context, executionID string, record models.NodeExecutionRecord) error

	// SetStatus fails with ErrRunNotFound or ErrInvalidTransition.
	SetStatus(ctx context.Context, executionID string, update StatusUpdate) (*models.ExecutionRun, error)

	// GetRun fails with ErrRunNotFound.
	GetRun(ctx context.Context, executionID string) (*models.ExecutionRun, error)

	// ListRuns returns the newest runs of a workflow first. limit <= 0 means DefaultListLimit.
	ListRuns(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error)
}

// DefaultListLimit bounds ListRuns when the caller does not.
const DefaultListLimit = 50

// StatusUpdate is a requested run status change.
type StatusUpdate struct {
	Status models.ExecutionStatus
	At     time.Time
	Error  *models.NodeError
}
