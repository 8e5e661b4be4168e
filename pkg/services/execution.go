package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoflow-io/autoflow/pkg/eventbus"
	"github.com/autoflow-io/autoflow/pkg/events"
	"github.com/autoflow-io/autoflow/pkg/execution"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"go.opentelemetry.io/otel/trace"
)

// DispatchMode decides who drives a submitted run.
type DispatchMode string

const (
	// DispatchInline drives runs on the API process in the background.
	DispatchInline DispatchMode = "inline"
	// DispatchQueue only queues runs and publishes ExecutionRequested for workers.
	DispatchQueue DispatchMode = "queue"
)

// ParseDispatchMode validates a dispatch mode name.
func ParseDispatchMode(raw string) (DispatchMode, error) {
	switch DispatchMode(raw) {
	case DispatchInline, DispatchQueue:
		return DispatchMode(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown dispatch mode %q", ErrInvalidRequest, raw)
	}
}

// ExecuteRequest asks for a workflow run.
type ExecuteRequest struct {
	WorkflowID     string
	InputData      map[string]any
	IdempotencyKey string
	Owner          string
}

// ExecuteResponse identifies the run serving an ExecuteRequest.
type ExecuteResponse struct {
	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
	Created     bool                   `json:"-"`
}

// StatusResponse is the client-facing projection of a run.
type StatusResponse struct {
	ExecutionID string                       `json:"execution_id"`
	WorkflowID  string                       `json:"workflow_id"`
	Status      models.ExecutionStatus       `json:"status"`
	NodeLogs    []models.NodeExecutionRecord `json:"node_logs"`
	Error       *models.NodeError            `json:"error,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
	StartedAt   *time.Time                   `json:"started_at"`
	FinishedAt  *time.Time                   `json:"finished_at"`
}

// NewStatusResponse projects a stored run.
func NewStatusResponse(run *models.ExecutionRun) *StatusResponse {
	logs := run.NodeLogs
	if logs == nil {
		logs = []models.NodeExecutionRecord{}
	}

	return &StatusResponse{
		ExecutionID: run.ID,
		WorkflowID:  run.WorkflowID,
		Status:      run.Status,
		NodeLogs:    logs,
		Error:       run.Error,
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
}

type Execution struct {
	engine    *execution.Engine
	store     persistence.ExecutionRepository
	workflows persistence.WorkflowRepository
	publisher eventbus.EventPublisher
	mode      DispatchMode
	logger    *slog.Logger
}

// NewExecution creates the execution service. publisher is required in DispatchQueue mode.
func NewExecution(
	engine *execution.Engine,
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
	mode DispatchMode,
	logger *slog.Logger,
) *Execution {
	if mode == DispatchQueue && publisher == nil {
		panic("services: queue dispatch requires an event publisher")
	}

	return &Execution{
		engine:    engine,
		store:     persistence.ExecutionRepository(),
		workflows: persistence.WorkflowRepository(),
		publisher: publisher,
		mode:      mode,
		logger:    logger.With("module", "execution_service"),
	}
}

// Execute submits a run and hands it to the dispatcher without waiting for it to finish.
// Repeating a request with the same idempotency key returns the run registered first.
func (s *Execution) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	submit := execution.SubmitRequest{
		WorkflowID:     req.WorkflowID,
		InputData:      req.InputData,
		IdempotencyKey: req.IdempotencyKey,
		Owner:          req.Owner,
	}

	var (
		run     *models.ExecutionRun
		created bool
		err     error
	)

	switch s.mode {
	case DispatchQueue:
		run, created, err = s.engine.Submit(ctx, submit)
		if err != nil {
			return nil, err
		}

		// A queued run that was returned for a repeated key is re-requested in case the
		// first request never reached a worker. Workers ignore runs that already started.
		if run.Status == models.ExecutionStatusQueued {
			if err := s.request(ctx, run); err != nil {
				return nil, err
			}
		}
	default:
		run, created, err = s.engine.Submit(ctx, submit)
		if err != nil {
			return nil, err
		}

		if created {
			// Request contexts do not outlive the handler; only the span is carried over.
			s.engine.Go(trace.ContextWithSpan(context.Background(), trace.SpanFromContext(ctx)), run.ID)
		}
	}

	return &ExecuteResponse{ExecutionID: run.ID, Status: run.Status, Created: created}, nil
}

func (s *Execution) request(ctx context.Context, run *models.ExecutionRun) error {
	event := events.ExecutionRequested{
		BaseEvent: events.NewBaseEvent(events.ExecutionRequestedEvent, run.WorkflowID, run.ID),
	}

	if err := s.publisher.Publish(ctx, run.ID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to request execution", "execution_id", run.ID, "error", err)

		return fmt.Errorf("failed to request execution %s: %w", run.ID, err)
	}

	s.logger.InfoContext(ctx, "Execution requested", "execution_id", run.ID, "workflow_id", run.WorkflowID)

	return nil
}

// Status returns the best-known state of a run, including partial node logs.
func (s *Execution) Status(ctx context.Context, executionID string) (*StatusResponse, error) {
	run, err := s.store.GetRun(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return NewStatusResponse(run), nil
}

// Cancel stops a run that has not finished yet.
func (s *Execution) Cancel(ctx context.Context, executionID string) (*StatusResponse, error) {
	run, err := s.engine.Cancel(ctx, executionID)
	if err != nil {
		if persistence.IsStateConflict(err) {
			return nil, NewValidationError("Cancel", "EXECUTION_FINISHED",
				fmt.Sprintf("execution %s already finished", executionID), ErrExecutionFinished)
		}

		return nil, err
	}

	return NewStatusResponse(run), nil
}

// ListByWorkflow returns the newest runs of a workflow.
func (s *Execution) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*StatusResponse, error) {
	if limit < 0 || limit > 500 {
		return nil, NewValidationError("ListByWorkflow", "INVALID_LIMIT",
			fmt.Sprintf("limit must be between 0 and 500, got %d", limit), ErrInvalidRequest)
	}

	if _, err := s.workflows.GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	runs, err := s.store.ListRuns(ctx, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	responses := make([]*StatusResponse, len(runs))
	for i, run := range runs {
		responses[i] = NewStatusResponse(run)
	}

	return responses, nil
}
