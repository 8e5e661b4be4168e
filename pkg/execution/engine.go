// Package execution drives workflow runs: it turns a validated graph into level-by-level
// node dispatch and records every step in the execution store.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/autoflow-io/autoflow/pkg/eventbus"
	"github.com/autoflow-io/autoflow/pkg/graph"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/otelhelper"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/registry"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxParallel = 8
	// DefaultConditionTimeout bounds one edge condition evaluation.
	DefaultConditionTimeout = 5 * time.Second

	// closeGrace is how long Close waits for cancelled runs to record their final state.
	closeGrace = 5 * time.Second

	planCacheTTL     = 10 * time.Minute
	planCacheCleanup = 20 * time.Minute
)

// Options are the collaborators of an Engine. Store, Workflows and Registry are required.
type Options struct {
	Store     persistence.ExecutionRepository
	Workflows persistence.WorkflowRepository
	Registry  *registry.Registry
	// Publisher receives lifecycle events when set.
	Publisher eventbus.EventPublisher
	Logger    *slog.Logger
	Tracer    trace.Tracer
	// MaxParallel bounds the nodes of one level running at the same time.
	MaxParallel int
	// ConditionTimeout bounds each edge condition. Defaults to DefaultConditionTimeout.
	ConditionTimeout time.Duration
	Clock            func() time.Time
	// WorkerID is stamped on published events.
	WorkerID string
}

// SubmitRequest asks for a workflow to be executed.
type SubmitRequest struct {
	WorkflowID     string
	InputData      map[string]any
	IdempotencyKey string
	Owner          string
}

type activeRun struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

type Engine struct {
	store       persistence.ExecutionRepository
	workflows   persistence.WorkflowRepository
	registry    *registry.Registry
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	maxParallel int
	now         func() time.Time
	workerID    string

	conditionTimeout time.Duration

	plans *gocache.Cache

	mu     sync.Mutex
	active map[string]*activeRun
	closed bool
	// wg tracks goroutines started by Go, runs tracks registered runs.
	wg   sync.WaitGroup
	runs sync.WaitGroup
}

func NewEngine(opts Options) *Engine {
	if opts.Store == nil || opts.Workflows == nil || opts.Registry == nil {
		panic("execution: store, workflows and registry are required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otelhelper.NoopTracer("autoflow/execution")
	}

	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	conditionTimeout := opts.ConditionTimeout
	if conditionTimeout <= 0 {
		conditionTimeout = DefaultConditionTimeout
	}

	now := opts.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{
		store:       opts.Store,
		workflows:   opts.Workflows,
		registry:    opts.Registry,
		publisher:   opts.Publisher,
		logger:      logger.With("module", "execution_engine"),
		tracer:      tracer,
		maxParallel: maxParallel,
		now:         now,
		workerID:    opts.WorkerID,

		conditionTimeout: conditionTimeout,
		plans:       gocache.New(planCacheTTL, planCacheCleanup),
		active:      make(map[string]*activeRun),
	}
}

// Submit validates the workflow and registers a queued run. When the idempotency key already
// maps to a live or successful run, that run is returned unchanged and created is false.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*models.ExecutionRun, bool, error) {
	if _, _, err := e.load(ctx, req.WorkflowID); err != nil {
		return nil, false, err
	}

	run := &models.ExecutionRun{
		ID:             uuid.New().String(),
		WorkflowID:     req.WorkflowID,
		IdempotencyKey: req.IdempotencyKey,
		Owner:          req.Owner,
		Status:         models.ExecutionStatusQueued,
		InputData:      req.InputData,
		CreatedAt:      e.now(),
	}

	stored, created, err := e.store.CreateRun(ctx, run)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create run: %w", err)
	}

	if created {
		e.logger.InfoContext(ctx, "Execution queued",
			"execution_id", stored.ID,
			"workflow_id", stored.WorkflowID,
			"idempotency_key", stored.IdempotencyKey)
	} else {
		e.logger.InfoContext(ctx, "Returning existing execution for idempotency key",
			"execution_id", stored.ID,
			"workflow_id", stored.WorkflowID,
			"status", stored.Status)
	}

	return stored, created, nil
}

// Execute submits the request and drives the new run to a terminal state before returning.
func (e *Engine) Execute(ctx context.Context, req SubmitRequest) (*models.ExecutionRun, error) {
	run, created, err := e.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	if !created {
		return run, nil
	}

	return e.Run(ctx, run.ID)
}

// Start submits the request and drives the new run in the background. The returned run is
// the queued (or reused) record.
func (e *Engine) Start(ctx context.Context, req SubmitRequest) (*models.ExecutionRun, bool, error) {
	run, created, err := e.Submit(ctx, req)
	if err != nil {
		return nil, false, err
	}

	if created {
		e.Go(ctx, run.ID)
	}

	return run, created, nil
}

// Go drives executionID on a background goroutine detached from ctx cancellation. A closed
// engine leaves the run queued.
func (e *Engine) Go(ctx context.Context, executionID string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.WarnContext(ctx, "Engine closed, leaving execution queued", "execution_id", executionID)

		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()

		if _, err := e.Run(context.WithoutCancel(ctx), executionID); err != nil {
			e.logger.ErrorContext(ctx, "Background execution failed", "execution_id", executionID, "error", err)
		}
	}()
}

// Run drives a queued run to a terminal state. Runs that are no longer queued are returned
// as stored, so redelivered dispatch requests are harmless. A closed engine returns
// ErrEngineClosed and leaves the run queued.
func (e *Engine) Run(ctx context.Context, executionID string) (*models.ExecutionRun, error) {
	run, err := e.store.GetRun(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.ExecutionStatusQueued {
		e.logger.DebugContext(ctx, "Execution already picked up", "execution_id", run.ID, "status", run.Status)

		return run, nil
	}

	workflow, plan, err := e.load(ctx, run.WorkflowID)
	if err != nil {
		return e.failBeforeStart(ctx, run, err)
	}

	return e.drive(ctx, run, workflow, plan)
}

// Cancel stops a run. An active run stops dispatching new levels, discards in-flight node
// results and fails with a cancelled error; Cancel waits until it has been finalized.
// A queued run that is not active here fails directly.
func (e *Engine) Cancel(ctx context.Context, executionID string) (*models.ExecutionRun, error) {
	e.mu.Lock()
	active, ok := e.active[executionID]
	e.mu.Unlock()

	if ok {
		active.cancel(ErrCancelled)

		select {
		case <-active.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		return e.store.GetRun(ctx, executionID)
	}

	run, err := e.store.GetRun(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if run.Status.IsTerminal() {
		return nil, persistence.NewExecutionError("Cancel", executionID, persistence.ErrRunAlreadyTerminal)
	}

	updated, err := e.store.SetStatus(ctx, executionID, persistence.StatusUpdate{
		Status: models.ExecutionStatusFailed,
		At:     e.now(),
		Error:  cancelledError(),
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Execution cancelled", "execution_id", executionID, "previous_status", run.Status)
	e.publish(ctx, updated.ID, e.cancelledEvent(updated, 0))

	return updated, nil
}

// Active reports whether executionID is being driven by this engine.
func (e *Engine) Active(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.active[executionID]

	return ok
}

// Close stops accepting runs and waits for the active ones to finish. Runs still active
// when ctx is done are cancelled with ErrEngineClosed and get a short grace period to record
// their final state; Close then returns ctx.Err().
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	pending := len(e.active)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Draining execution engine", "active_runs", pending)

	drained := make(chan struct{})

	go func() {
		e.wg.Wait()
		e.runs.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
	}

	e.mu.Lock()
	for id, active := range e.active {
		e.logger.WarnContext(ctx, "Cancelling execution still running at shutdown", "execution_id", id)
		active.cancel(ErrEngineClosed)
	}
	e.mu.Unlock()

	select {
	case <-drained:
	case <-time.After(closeGrace):
		e.logger.ErrorContext(ctx, "Execution engine closed with runs still finalizing")
	}

	return ctx.Err()
}

// Plan returns the validated plan of a workflow, reusing the cached one while the workflow
// is unchanged.
func (e *Engine) Plan(workflow *models.Workflow) (*graph.Plan, error) {
	key := workflow.ID + ":" + strconv.FormatInt(workflow.UpdatedAt.UnixNano(), 10)

	if cached, ok := e.plans.Get(key); ok {
		if plan, ok := cached.(*graph.Plan); ok {
			return plan, nil
		}
	}

	plan, err := graph.Validate(workflow)
	if err != nil {
		return nil, err
	}

	e.plans.SetDefault(key, plan)

	return plan, nil
}

func (e *Engine) load(ctx context.Context, workflowID string) (*models.Workflow, *graph.Plan, error) {
	workflow, err := e.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, &SubmitError{WorkflowID: workflowID, Err: err}
	}

	plan, err := e.Plan(workflow)
	if err != nil {
		return nil, nil, &SubmitError{WorkflowID: workflowID, Err: err}
	}

	return workflow, plan, nil
}

// failBeforeStart fails a queued run whose workflow vanished or became invalid after submission.
func (e *Engine) failBeforeStart(ctx context.Context, run *models.ExecutionRun, cause error) (*models.ExecutionRun, error) {
	e.logger.ErrorContext(ctx, "Cannot start execution", "execution_id", run.ID, "workflow_id", run.WorkflowID, "error", cause)

	updated, err := e.store.SetStatus(ctx, run.ID, persistence.StatusUpdate{
		Status: models.ExecutionStatusFailed,
		At:     e.now(),
		Error:  &models.NodeError{Code: models.NodeErrorInvalidConfig, Message: cause.Error()},
	})
	if err != nil {
		if persistence.IsStateConflict(err) {
			return e.store.GetRun(ctx, run.ID)
		}

		return nil, err
	}

	return updated, nil
}

func (e *Engine) register(executionID string, cancel context.CancelCauseFunc) (*activeRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}

	if _, exists := e.active[executionID]; exists {
		return nil, fmt.Errorf("execution %s is already running", executionID)
	}

	active := &activeRun{cancel: cancel, done: make(chan struct{})}
	e.active[executionID] = active
	e.runs.Add(1)

	return active, nil
}

func (e *Engine) unregister(executionID string, active *activeRun) {
	e.mu.Lock()
	delete(e.active, executionID)
	e.mu.Unlock()

	close(active.done)
	e.runs.Done()
}

func cancelledError() *models.NodeError {
	return &models.NodeError{Code: models.NodeErrorCancelled, Message: "execution cancelled"}
}

func isCancellation(cause error) bool {
	return errors.Is(cause, ErrCancelled) || errors.Is(cause, ErrEngineClosed) || errors.Is(cause, context.Canceled)
}
