// Package models defines the core domain models for node-based workflow automation
package models

import "time"

// Workflow is a stored node/connection graph. It is read-only to the execution engine.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"                  validate:"required,min=3"`
	Description string          `json:"description"`
	Nodes       []*WorkflowNode `json:"nodes"                 validate:"dive"`
	Connections []*Connection   `json:"connections"           validate:"dive"`
	Variables   map[string]any  `json:"variables,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Owner       string          `json:"owner"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (*WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node != nil && node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// Connection is a directed edge between two nodes. Condition is an optional predicate
// evaluated against the upstream node output; a false result leaves the edge unsatisfied.
type Connection struct {
	ID        string `json:"id,omitempty"`
	From      string `json:"from"                validate:"required"`
	To        string `json:"to"                  validate:"required"`
	Condition string `json:"condition,omitempty"`
}
