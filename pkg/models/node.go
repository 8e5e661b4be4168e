package models

import "time"

// Built-in node types.
const (
	NodeTypeTrigger     = "trigger"
	NodeTypeAction      = "action"
	NodeTypeCondition   = "condition"
	NodeTypeDelay       = "delay"
	NodeTypeAICall      = "ai_call"
	NodeTypeWebhookCall = "webhook_call"
)

// WorkflowNode represents a node instance in a workflow.
type WorkflowNode struct {
	ID     string         `json:"id"               validate:"required"`
	Type   string         `json:"type"             validate:"required"`
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// IsTriggerNode reports whether the node starts a workflow.
func (n *WorkflowNode) IsTriggerNode() bool {
	return n.Type == NodeTypeTrigger
}

// Policy returns the error-handling policy configured on the node.
func (n *WorkflowNode) Policy() NodePolicy {
	return ParseNodePolicy(n.Config)
}

// NodeStatus defines the terminal states of a single node execution.
type NodeStatus string

const (
	NodeStatusSucceeded NodeStatus = "succeeded"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// NodeExecutionRecord is the append-only log entry written once a node reaches a terminal state.
type NodeExecutionRecord struct {
	NodeID     string         `json:"node_id"`
	NodeType   string         `json:"node_type"`
	Status     NodeStatus     `json:"status"`
	Attempts   int            `json:"attempts"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DurationMs int64          `json:"duration_ms"`
	Output     map[string]any `json:"output,omitempty"`
	Error      *NodeError     `json:"error,omitempty"`
}

// NodeErrorCode classifies node execution failures.
type NodeErrorCode string

const (
	NodeErrorUnknownNodeType NodeErrorCode = "unknown_node_type"
	NodeErrorTimeout         NodeErrorCode = "timeout"
	NodeErrorAuth            NodeErrorCode = "auth_error"
	NodeErrorRemote          NodeErrorCode = "remote_error"
	NodeErrorExpression      NodeErrorCode = "expression_error"
	NodeErrorAIProvider      NodeErrorCode = "ai_provider_error"
	NodeErrorInvalidConfig   NodeErrorCode = "invalid_config"
	NodeErrorCancelled       NodeErrorCode = "cancelled"
	NodeErrorHandler         NodeErrorCode = "handler_error"
	NodeErrorUpstreamFailed  NodeErrorCode = "upstream_failed"
)

// NodeError is the serialized form of a node failure.
type NodeError struct {
	Code    NodeErrorCode  `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *NodeError) Error() string {
	return string(e.Code) + ": " + e.Message
}
