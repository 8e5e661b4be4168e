// Package protocol defines the interfaces and contracts for pluggable node handlers.
package protocol

import (
	"context"
	"log/slog"
)

// Handler executes one node type. Implementations must be safe for concurrent use: the
// dispatcher calls Execute from several goroutines when independent nodes share a level.
type Handler interface {
	// Type returns the node type string this handler serves.
	Type() string

	// Validate checks a node configuration without executing anything.
	Validate(config map[string]any) error

	// Execute runs the node. The context carries the per-node timeout and run cancellation.
	Execute(ctx context.Context, req Request) (map[string]any, error)
}

// Describer is implemented by handlers that publish catalog metadata.
type Describer interface {
	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// Request is everything a handler receives for a single invocation.
type Request struct {
	ExecutionID string
	WorkflowID  string
	NodeID      string
	Config      map[string]any
	// Inputs maps each satisfied upstream node id to its output.
	Inputs    map[string]map[string]any
	InputData map[string]any
	Variables map[string]any
	// Attempt starts at 1 and increases on every retry.
	Attempt int
	Logger  *slog.Logger
}

// TemplateData is the view of a request exposed to config templates and expressions.
func (r Request) TemplateData() map[string]any {
	inputs := make(map[string]any, len(r.Inputs))
	for id, output := range r.Inputs {
		inputs[id] = output
	}

	return map[string]any{
		"inputs":     inputs,
		"input":      r.MergedInput(),
		"input_data": r.InputData,
		"variables":  r.Variables,
		"execution": map[string]any{
			"id":          r.ExecutionID,
			"workflow_id": r.WorkflowID,
			"node_id":     r.NodeID,
			"attempt":     r.Attempt,
		},
	}
}

// MergedInput flattens every upstream output into one map. With a single upstream node
// this is simply its output; later keys win on collision in unspecified order.
func (r Request) MergedInput() map[string]any {
	merged := make(map[string]any)

	for _, output := range r.Inputs {
		for k, v := range output {
			merged[k] = v
		}
	}

	return merged
}
