package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow run.
type ExecutionStatus string

const (
	ExecutionStatusQueued          ExecutionStatus = "queued"
	ExecutionStatusRunning         ExecutionStatus = "running"
	ExecutionStatusSucceeded       ExecutionStatus = "succeeded"
	ExecutionStatusFailed          ExecutionStatus = "failed"
	ExecutionStatusPartiallyFailed ExecutionStatus = "partially_failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSucceeded, ExecutionStatusFailed, ExecutionStatusPartiallyFailed:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known status.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionStatusQueued, ExecutionStatusRunning,
		ExecutionStatusSucceeded, ExecutionStatusFailed, ExecutionStatusPartiallyFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo encodes queued → running → {succeeded|failed|partially_failed}.
// A queued run may also fail directly when it is cancelled before dispatch.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionStatusQueued:
		return next == ExecutionStatusRunning || next == ExecutionStatusFailed
	case ExecutionStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// ExecutionRun is the durable record of one workflow execution.
type ExecutionRun struct {
	ID             string                `json:"execution_id"`
	WorkflowID     string                `json:"workflow_id"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
	Owner          string                `json:"owner,omitempty"`
	Status         ExecutionStatus       `json:"status"`
	InputData      map[string]any        `json:"input_data,omitempty"`
	NodeLogs       []NodeExecutionRecord `json:"node_logs"`
	Error          *NodeError            `json:"error,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	StartedAt      *time.Time            `json:"started_at,omitempty"`
	FinishedAt     *time.Time            `json:"finished_at,omitempty"`
	Version        int64                 `json:"version"`
}

// Clone returns a deep-enough copy for handing out of a store: the node log slice is copied
// so callers cannot append into the stored run.
func (r *ExecutionRun) Clone() *ExecutionRun {
	if r == nil {
		return nil
	}

	clone := *r
	clone.NodeLogs = append([]NodeExecutionRecord(nil), r.NodeLogs...)

	if r.StartedAt != nil {
		startedAt := *r.StartedAt
		clone.StartedAt = &startedAt
	}

	if r.FinishedAt != nil {
		finishedAt := *r.FinishedAt
		clone.FinishedAt = &finishedAt
	}

	return &clone
}

// HasNodeLog reports whether a record for nodeID was already appended.
func (r *ExecutionRun) HasNodeLog(nodeID string) bool {
	for _, record := range r.NodeLogs {
		if record.NodeID == nodeID {
			return true
		}
	}

	return false
}
