// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/autoflow-io/autoflow/pkg/models"

// WorkflowRequest is the body of workflow create and replace requests.
type WorkflowRequest struct {
	Name        string              `json:"name"               validate:"required,min=3"`
	Description string              `json:"description"`
	Nodes       []NodeRequest       `json:"nodes"              validate:"required,min=1,dive"`
	Connections []ConnectionRequest `json:"connections"        validate:"dive"`
	Variables   map[string]any      `json:"variables"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	Owner       string              `json:"owner"`
}

// NodeRequest describes one node of a workflow.
type NodeRequest struct {
	ID     string         `json:"id"     validate:"required"`
	Type   string         `json:"type"   validate:"required"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// ConnectionRequest describes one edge of a workflow.
type ConnectionRequest struct {
	ID        string `json:"id"`
	From      string `json:"from"               validate:"required"`
	To        string `json:"to"                 validate:"required"`
	Condition string `json:"condition,omitempty"`
}

// ExecuteWorkflowRequest is the optional body of an execute call.
type ExecuteWorkflowRequest struct {
	InputData map[string]any `json:"input_data"`
}

// Workflow converts the request into a workflow model. Connections without an id get one
// derived from their endpoints.
func (r WorkflowRequest) Workflow() *models.Workflow {
	workflow := &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		Variables:   r.Variables,
		Metadata:    r.Metadata,
		Owner:       r.Owner,
		Nodes:       make([]*models.WorkflowNode, len(r.Nodes)),
		Connections: make([]*models.Connection, len(r.Connections)),
	}

	if workflow.Variables == nil {
		workflow.Variables = map[string]any{}
	}

	for i, node := range r.Nodes {
		config := node.Config
		if config == nil {
			config = map[string]any{}
		}

		workflow.Nodes[i] = &models.WorkflowNode{ID: node.ID, Type: node.Type, Name: node.Name, Config: config}
	}

	for i, conn := range r.Connections {
		id := conn.ID
		if id == "" {
			id = conn.From + "->" + conn.To
		}

		workflow.Connections[i] = &models.Connection{ID: id, From: conn.From, To: conn.To, Condition: conn.Condition}
	}

	return workflow
}
