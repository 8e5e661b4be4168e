// Package events defines event types and structures for execution lifecycle notifications.
package events

import (
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every execution event.
const Topic = "autoflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Dispatch requests consumed by workers.
	ExecutionRequestedEvent EventType = "execution.requested"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Node events.
	NodeExecutedEvent EventType = "node.executed"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ExecutionRequested asks a worker to drive a queued run.
type ExecutionRequested struct {
	BaseEvent
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent

	InputData map[string]any `json:"input_data,omitempty"`
	Owner     string         `json:"owner,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionCompleted is published for succeeded and partially_failed runs.
type ExecutionCompleted struct {
	BaseEvent

	Status        models.ExecutionStatus `json:"status"`
	DurationMs    int64                  `json:"duration_ms"`
	NodesExecuted int                    `json:"nodes_executed"`
	NodesFailed   int                    `json:"nodes_failed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	DurationMs    int64             `json:"duration_ms"`
	NodesExecuted int               `json:"nodes_executed"`
	FailedNodeID  string            `json:"failed_node_id,omitempty"`
	Error         *models.NodeError `json:"error,omitempty"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	DurationMs    int64 `json:"duration_ms"`
	NodesExecuted int   `json:"nodes_executed"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type NodeExecuted struct {
	BaseEvent

	NodeID     string            `json:"node_id"`
	NodeType   string            `json:"node_type"`
	Status     models.NodeStatus `json:"status"`
	Attempts   int               `json:"attempts"`
	DurationMs int64             `json:"duration_ms"`
	Error      *models.NodeError `json:"error,omitempty"`
}

func (e NodeExecuted) GetType() EventType {
	return NodeExecutedEvent
}

func NewBaseEvent(eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Metadata:    make(map[string]any),
	}
}

// New returns an empty event value for eventType, ready to be unmarshalled into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case ExecutionRequestedEvent:
		return &ExecutionRequested{}, true
	case ExecutionStartedEvent:
		return &ExecutionStarted{}, true
	case ExecutionCompletedEvent:
		return &ExecutionCompleted{}, true
	case ExecutionFailedEvent:
		return &ExecutionFailed{}, true
	case ExecutionCancelledEvent:
		return &ExecutionCancelled{}, true
	case NodeExecutedEvent:
		return &NodeExecuted{}, true
	default:
		return nil, false
	}
}
