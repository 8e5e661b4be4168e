// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(id string, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:     id,
		Type:   models.NodeTypeAction,
		Name:   "Test Node " + id,
		Config: map[string]any{},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithTriggerNode configures the node as a trigger node.
func WithTriggerNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeTrigger
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// Edge returns a connection from -> to.
func Edge(from, to string) *models.Connection {
	return &models.Connection{ID: from + "->" + to, From: from, To: to}
}

// ConditionalEdge returns a connection that is only followed when condition holds.
func ConditionalEdge(from, to, condition string) *models.Connection {
	c := Edge(from, to)
	c.Condition = condition

	return c
}

// CreateTestWorkflow assembles a workflow with a random id.
func CreateTestWorkflow(nodes []*models.WorkflowNode, connections ...*models.Connection) *models.Workflow {
	return &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Nodes:       nodes,
		Connections: connections,
		Variables:   map[string]any{},
		Owner:       "test-user",
	}
}

// CreateTestRun creates a queued run for workflowID.
func CreateTestRun(workflowID string, overrides ...func(*models.ExecutionRun)) *models.ExecutionRun {
	run := &models.ExecutionRun{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Status:     models.ExecutionStatusQueued,
		InputData:  map[string]any{"source": "test"},
	}

	for _, override := range overrides {
		override(run)
	}

	return run
}

// WithIdempotencyKey sets the run idempotency key.
func WithIdempotencyKey(key string) func(*models.ExecutionRun) {
	return func(r *models.ExecutionRun) {
		r.IdempotencyKey = key
	}
}

// WithOwner sets the run owner.
func WithOwner(owner string) func(*models.ExecutionRun) {
	return func(r *models.ExecutionRun) {
		r.Owner = owner
	}
}
