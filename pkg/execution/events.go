package execution

import (
	"context"

	"github.com/autoflow-io/autoflow/pkg/eventbus"
	"github.com/autoflow-io/autoflow/pkg/events"
	"github.com/autoflow-io/autoflow/pkg/models"
)

// publish sends event keyed by execution id. Publishing failures never affect the run.
func (e *Engine) publish(ctx context.Context, executionID string, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, executionID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"execution_id", executionID,
			"event_type", event.GetType(),
			"error", err)
	}
}

func (e *Engine) baseEvent(eventType events.EventType, run *models.ExecutionRun) events.BaseEvent {
	base := events.NewBaseEvent(eventType, run.WorkflowID, run.ID)
	base.WorkerID = e.workerID

	return base
}

func runDuration(run *models.ExecutionRun) int64 {
	if run.StartedAt == nil || run.FinishedAt == nil {
		return 0
	}

	return run.FinishedAt.Sub(*run.StartedAt).Milliseconds()
}

func (e *Engine) startedEvent(run *models.ExecutionRun) events.ExecutionStarted {
	return events.ExecutionStarted{
		BaseEvent: e.baseEvent(events.ExecutionStartedEvent, run),
		InputData: run.InputData,
		Owner:     run.Owner,
	}
}

func (e *Engine) completedEvent(run *models.ExecutionRun, state *runState) events.ExecutionCompleted {
	return events.ExecutionCompleted{
		BaseEvent:     e.baseEvent(events.ExecutionCompletedEvent, run),
		Status:        run.Status,
		DurationMs:    runDuration(run),
		NodesExecuted: state.executed,
		NodesFailed:   state.failed,
	}
}

func (e *Engine) failedEvent(run *models.ExecutionRun, state *runState) events.ExecutionFailed {
	event := events.ExecutionFailed{
		BaseEvent:     e.baseEvent(events.ExecutionFailedEvent, run),
		DurationMs:    runDuration(run),
		NodesExecuted: state.executed,
		Error:         run.Error,
	}

	if state.stopped != nil {
		event.FailedNodeID = state.stopped.NodeID
	}

	return event
}

func (e *Engine) cancelledEvent(run *models.ExecutionRun, executed int) events.ExecutionCancelled {
	return events.ExecutionCancelled{
		BaseEvent:     e.baseEvent(events.ExecutionCancelledEvent, run),
		DurationMs:    runDuration(run),
		NodesExecuted: executed,
	}
}

func (e *Engine) nodeExecutedEvent(run *models.ExecutionRun, record models.NodeExecutionRecord) events.NodeExecuted {
	return events.NodeExecuted{
		BaseEvent:  e.baseEvent(events.NodeExecutedEvent, run),
		NodeID:     record.NodeID,
		NodeType:   record.NodeType,
		Status:     record.Status,
		Attempts:   record.Attempts,
		DurationMs: record.DurationMs,
		Error:      record.Error,
	}
}
