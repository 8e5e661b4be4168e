package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/autoflow-io/autoflow/pkg/eventbus"
	"github.com/autoflow-io/autoflow/pkg/events"
	"github.com/autoflow-io/autoflow/pkg/execution"
	"github.com/autoflow-io/autoflow/pkg/persistence"
)

const drainTimeout = 30 * time.Second

// Runner drives queued runs. *execution.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, executionID string) error
	Close(ctx context.Context) error
}

type engineRunner struct {
	engine *execution.Engine
}

func (r engineRunner) Run(ctx context.Context, executionID string) error {
	_, err := r.engine.Run(ctx, executionID)

	return err
}

func (r engineRunner) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// WorkerManager consumes execution requests from the event bus and drives each run on
// the local engine.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	runner   Runner
	eventBus eventbus.EventBus
}

func NewWorkerManager(
	id string,
	engine *execution.Engine,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
) *WorkerManager {
	return newWorkerManager(id, engineRunner{engine: engine}, eventBus, logger)
}

func newWorkerManager(id string, runner Runner, eventBus eventbus.EventBus, logger *slog.Logger) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "autoflow-worker", "worker_id", id),
		runner:   runner,
		eventBus: eventBus,
	}
}

// Start subscribes to execution requests and blocks until ctx is done. In-flight runs get
// drainTimeout to finish before the engine cancels them.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-ctx.Done()
	w.logger.InfoContext(ctx, "Shutting down worker...")

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	return w.runner.Close(drainCtx)
}

func (w *WorkerManager) handleExecutionRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested")

		return nil
	}

	logger := w.logger.With(
		"workflow_id", requested.WorkflowID,
		"execution_id", requested.ExecutionID,
		"event_id", requested.ID,
	)
	logger.InfoContext(ctx, "Processing execution requested event")

	// Shutdown is handled by the drain in Start, not by the delivery context.
	err := w.runner.Run(context.WithoutCancel(ctx), requested.ExecutionID)

	switch {
	case err == nil:
		return nil
	case persistence.IsRunNotFound(err):
		logger.WarnContext(ctx, "Dropping request for unknown execution")

		return nil
	case errors.Is(err, execution.ErrEngineClosed):
		logger.InfoContext(ctx, "Worker is shutting down, leaving execution queued")

		return err
	default:
		logger.ErrorContext(ctx, "Failed to run execution", "error", err)

		return err
	}
}
