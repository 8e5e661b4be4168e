package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoflow-io/autoflow/pkg/expression"
	"github.com/autoflow-io/autoflow/pkg/graph"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/registry"
	"github.com/google/uuid"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, registry *registry.Registry, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    registry,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// FetchAll returns every stored workflow.
func (w *Workflow) FetchAll(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID returns the workflow with the given id.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create validates and stores a new workflow under a generated id.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if err := w.validate("Create", workflow); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", workflow.ID, "nodes", len(workflow.Nodes))

	return workflow, nil
}

// Update replaces the graph of an existing workflow.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := w.validate("Update", workflow); err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if workflow.Owner == "" {
		workflow.Owner = existing.Owner
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow updated", "workflow_id", workflow.ID)

	return workflow, nil
}

// Delete removes a workflow by its ID. Runs of the workflow stay readable.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return err
	}

	err := w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// PlanSummary describes how a workflow would be dispatched.
type PlanSummary struct {
	WorkflowID string     `json:"workflow_id"`
	Roots      []string   `json:"roots"`
	Order      []string   `json:"order"`
	Levels     [][]string `json:"levels"`
}

// Validate checks a stored workflow and reports its dispatch plan.
func (w *Workflow) Validate(ctx context.Context, workflowID string) (*PlanSummary, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := w.validate("Validate", workflow); err != nil {
		return nil, err
	}

	plan, err := graph.Validate(workflow)
	if err != nil {
		return nil, err
	}

	summary := &PlanSummary{
		WorkflowID: workflow.ID,
		Roots:      plan.Roots,
		Order:      make([]string, len(plan.Order)),
		Levels:     make([][]string, len(plan.Levels)),
	}

	for i, node := range plan.Order {
		summary.Order[i] = node.ID
	}

	for i, level := range plan.Levels {
		ids := make([]string, len(level))
		for j, node := range level {
			ids[j] = node.ID
		}

		summary.Levels[i] = ids
	}

	return summary, nil
}

// validate rejects workflows the engine could never run. Node types without a registered
// handler are accepted here: workers may carry plugins the API process does not load, and
// such nodes fail at run time with unknown_node_type.
func (w *Workflow) validate(op string, workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	if len(workflow.Nodes) == 0 {
		return ErrNodesRequired
	}

	if _, err := graph.Validate(workflow); err != nil {
		return err
	}

	for _, node := range workflow.Nodes {
		if _, ok := w.registry.Get(node.Type); !ok {
			w.logger.Warn("Workflow uses an unregistered node type", "node_id", node.ID, "node_type", node.Type)

			continue
		}

		if err := w.registry.ValidateConfig(node.Type, node.Config); err != nil {
			return NewValidationError(op, "INVALID_NODE_CONFIG",
				fmt.Sprintf("node %s: %v", node.ID, err), ErrInvalidNodeConfig)
		}
	}

	for _, conn := range workflow.Connections {
		if conn.Condition == "" {
			continue
		}

		if err := expression.Compile(conn.Condition); err != nil {
			return NewValidationError(op, "INVALID_CONDITION",
				fmt.Sprintf("connection %s -> %s: %v", conn.From, conn.To, err), ErrInvalidCondition)
		}
	}

	return nil
}
