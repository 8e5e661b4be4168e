package execution

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/autoflow-io/autoflow/pkg/expression"
	"github.com/autoflow-io/autoflow/pkg/graph"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/otelhelper"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
)

// runState is what the dispatcher learns while walking the levels of one run.
type runState struct {
	mu        sync.Mutex
	executed  int
	succeeded int
	failed    int
	stopped   *models.NodeExecutionRecord
	storeErr  error
	// aborted is set when the store refused a write because the run was finished elsewhere.
	aborted bool
}

func (s *runState) halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stopped != nil || s.storeErr != nil || s.aborted
}

func (e *Engine) drive(ctx context.Context, run *models.ExecutionRun, workflow *models.Workflow, plan *graph.Plan) (*models.ExecutionRun, error) {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	active, err := e.register(run.ID, cancel)
	if err != nil {
		if errors.Is(err, ErrEngineClosed) {
			return nil, err
		}

		return e.store.GetRun(ctx, run.ID)
	}
	defer e.unregister(run.ID, active)

	// Store writes must land even after the run context is cancelled.
	storeCtx := context.WithoutCancel(ctx)

	logger := e.logger.With("execution_id", run.ID, "workflow_id", run.WorkflowID)

	runCtx, span := otelhelper.StartSpan(runCtx, e.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, run.ID),
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
	)
	defer span.End()

	started, err := e.store.SetStatus(storeCtx, run.ID, persistence.StatusUpdate{
		Status: models.ExecutionStatusRunning,
		At:     e.now(),
	})
	if err != nil {
		if persistence.IsStateConflict(err) {
			logger.InfoContext(ctx, "Execution left queued state before it could start")

			return e.store.GetRun(storeCtx, run.ID)
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	logger.InfoContext(ctx, "Execution started", "levels", len(plan.Levels), "nodes", len(plan.Order))
	e.publish(ctx, started.ID, e.startedEvent(started))

	rc := NewRunContext(started, workflow.Variables)
	state := &runState{}

	for level, nodes := range plan.Levels {
		if runCtx.Err() != nil || state.halted() {
			break
		}

		e.runLevel(runCtx, storeCtx, logger, rc, plan, state, level, nodes)
	}

	if state.storeErr != nil {
		otelhelper.SetError(span, state.storeErr)
		logger.ErrorContext(ctx, "Execution store failed during run", "error", state.storeErr)

		e.finish(storeCtx, logger, rc, state, models.ExecutionStatusFailed, &models.NodeError{
			Code:    models.NodeErrorHandler,
			Message: "execution store error: " + state.storeErr.Error(),
		})

		return nil, state.storeErr
	}

	if state.aborted {
		logger.WarnContext(ctx, "Execution finished elsewhere while running")

		return e.store.GetRun(storeCtx, run.ID)
	}

	status, runErr := outcome(runCtx, state)
	span.SetAttributes(attribute.String(otelhelper.ExecutionStateKey, string(status)))

	if runErr != nil {
		otelhelper.SetError(span, runErr)
	}

	return e.finish(storeCtx, logger, rc, state, status, runErr)
}

// outcome maps what happened during the run to its terminal status.
func outcome(runCtx context.Context, state *runState) (models.ExecutionStatus, *models.NodeError) {
	if runCtx.Err() != nil {
		if isCancellation(context.Cause(runCtx)) {
			return models.ExecutionStatusFailed, cancelledError()
		}

		return models.ExecutionStatusFailed, &models.NodeError{
			Code:    models.NodeErrorTimeout,
			Message: "execution interrupted: " + context.Cause(runCtx).Error(),
		}
	}

	if state.stopped != nil {
		return models.ExecutionStatusFailed, stopError(state.stopped)
	}

	if state.failed > 0 {
		if state.succeeded == 0 {
			return models.ExecutionStatusFailed, &models.NodeError{
				Code:    models.NodeErrorHandler,
				Message: "every executed node failed",
			}
		}

		return models.ExecutionStatusPartiallyFailed, nil
	}

	return models.ExecutionStatusSucceeded, nil
}

func stopError(record *models.NodeExecutionRecord) *models.NodeError {
	details := map[string]any{"node_id": record.NodeID}
	code := models.NodeErrorHandler
	message := "node " + record.NodeID + " failed"

	if record.Error != nil {
		code = record.Error.Code
		message = fmt.Sprintf("node %s failed: %s", record.NodeID, record.Error.Message)

		for k, v := range record.Error.Details {
			details[k] = v
		}
	}

	return &models.NodeError{Code: code, Message: message, Details: details}
}

func (e *Engine) finish(
	ctx context.Context,
	logger *slog.Logger,
	rc *RunContext,
	state *runState,
	status models.ExecutionStatus,
	runErr *models.NodeError,
) (*models.ExecutionRun, error) {
	finished, err := e.store.SetStatus(ctx, rc.Run.ID, persistence.StatusUpdate{
		Status: status,
		At:     e.now(),
		Error:  runErr,
	})
	if err != nil {
		if persistence.IsStateConflict(err) {
			return e.store.GetRun(ctx, rc.Run.ID)
		}

		return nil, err
	}

	duration := finished.FinishedAt.Sub(*finished.StartedAt)

	logger.InfoContext(ctx, "Execution finished",
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"nodes_executed", state.executed,
		"nodes_failed", state.failed)

	switch {
	case runErr != nil && runErr.Code == models.NodeErrorCancelled:
		e.publish(ctx, finished.ID, e.cancelledEvent(finished, state.executed))
	case status == models.ExecutionStatusFailed:
		e.publish(ctx, finished.ID, e.failedEvent(finished, state))
	default:
		e.publish(ctx, finished.ID, e.completedEvent(finished, state))
	}

	return finished, nil
}

// levelResult is a finished node of the current level waiting to be logged.
type levelResult struct {
	position int
	record   models.NodeExecutionRecord
	output   map[string]any
	stops    bool
}

// runLevel dispatches the eligible nodes of one level in parallel and returns once all of
// them are done. A stop failure cancels the siblings still in flight; their results are
// discarded, as are results that arrive after the run was cancelled.
func (e *Engine) runLevel(
	runCtx context.Context,
	storeCtx context.Context,
	logger *slog.Logger,
	rc *RunContext,
	plan *graph.Plan,
	state *runState,
	level int,
	nodes []*models.WorkflowNode,
) {
	levelCtx, cancelLevel := context.WithCancel(runCtx)
	defer cancelLevel()

	sem := semaphore.NewWeighted(int64(e.maxParallel))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []levelResult
	)

	collect := func(node *models.WorkflowNode, record models.NodeExecutionRecord, output map[string]any) {
		mu.Lock()
		defer mu.Unlock()

		if levelCtx.Err() != nil {
			logger.DebugContext(runCtx, "Discarding node result", "node_id", record.NodeID, "status", record.Status)

			return
		}

		stops := record.Status == models.NodeStatusFailed && node.Policy().OnError != models.OnErrorContinue

		results = append(results, levelResult{
			position: plan.Position(node.ID),
			record:   record,
			output:   output,
			stops:    stops,
		})

		if stops {
			cancelLevel()
		}
	}

	for _, node := range nodes {
		inputs, skip, condErr := e.resolveInputs(levelCtx, rc, plan, node)

		switch {
		case condErr != nil:
			now := e.now()
			collect(node, models.NodeExecutionRecord{
				NodeID:     node.ID,
				NodeType:   node.Type,
				Status:     models.NodeStatusFailed,
				StartedAt:  now,
				FinishedAt: now,
				Error:      condErr,
			}, nil)

			continue
		case skip:
			logger.InfoContext(runCtx, "Skipping node without satisfied inputs", "node_id", node.ID)

			now := e.now()
			collect(node, models.NodeExecutionRecord{
				NodeID:     node.ID,
				NodeType:   node.Type,
				Status:     models.NodeStatusSkipped,
				StartedAt:  now,
				FinishedAt: now,
			}, nil)

			continue
		}

		if err := sem.Acquire(levelCtx, 1); err != nil {
			break
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer sem.Release(1)

			record, output := e.executeNode(levelCtx, logger, rc, node, inputs, level)
			collect(node, record, output)
		}()
	}

	wg.Wait()

	e.commitLevel(storeCtx, logger, rc, state, results)
}

// commitLevel appends the results of a level in topological order. Nothing positioned after
// the first stop failure is logged.
func (e *Engine) commitLevel(
	ctx context.Context,
	logger *slog.Logger,
	rc *RunContext,
	state *runState,
	results []levelResult,
) {
	slices.SortFunc(results, func(a, b levelResult) int {
		return cmp.Compare(a.position, b.position)
	})

	for i, result := range results {
		if err := e.store.AppendNodeLog(ctx, rc.Run.ID, result.record); err != nil {
			state.mu.Lock()
			if errors.Is(err, persistence.ErrRunAlreadyTerminal) {
				state.aborted = true
			} else {
				state.storeErr = err
			}
			state.mu.Unlock()

			return
		}

		if result.record.Status == models.NodeStatusSucceeded {
			rc.Bind(result.record.NodeID, result.output)
		}

		state.mu.Lock()
		switch result.record.Status {
		case models.NodeStatusSucceeded:
			state.executed++
			state.succeeded++
		case models.NodeStatusFailed:
			state.executed++
			state.failed++
		}

		if result.stops {
			state.stopped = &results[i].record
		}
		state.mu.Unlock()

		e.publish(ctx, rc.Run.ID, e.nodeExecutedEvent(rc.Run, result.record))

		if result.stops {
			if dropped := len(results) - i - 1; dropped > 0 {
				logger.InfoContext(ctx, "Dropping results ordered after the failed node",
					"node_id", result.record.NodeID,
					"dropped", dropped)
			}

			return
		}
	}
}

// resolveInputs collects the outputs of upstream nodes whose connections are satisfied.
// A non-root node with no satisfied connection is skipped. A broken condition fails the node.
func (e *Engine) resolveInputs(
	ctx context.Context,
	rc *RunContext,
	plan *graph.Plan,
	node *models.WorkflowNode,
) (map[string]map[string]any, bool, *models.NodeError) {
	inputs := make(map[string]map[string]any)

	for _, conn := range plan.Incoming(node.ID) {
		output, ok := rc.Binding(conn.From)
		if !ok {
			continue
		}

		if conn.Condition != "" {
			matched, err := e.evaluateCondition(ctx, rc, node, conn, output)
			if err != nil {
				code := models.NodeErrorExpression
				if errors.Is(err, context.DeadlineExceeded) {
					code = models.NodeErrorTimeout
				}

				return nil, false, &models.NodeError{
					Code:    code,
					Message: err.Error(),
					Details: map[string]any{"from": conn.From, "condition": conn.Condition},
				}
			}

			if !matched {
				continue
			}
		}

		inputs[conn.From] = output
	}

	if len(inputs) == 0 && !plan.IsRoot(node.ID) {
		return nil, true, nil
	}

	return inputs, false, nil
}

// evaluateCondition runs an edge condition within the condition budget, or the target
// node's timeout when that is shorter.
func (e *Engine) evaluateCondition(
	ctx context.Context,
	rc *RunContext,
	node *models.WorkflowNode,
	conn *models.Connection,
	output map[string]any,
) (bool, error) {
	budget := e.conditionTimeout
	if timeout := node.Policy().Timeout; timeout > 0 && timeout < budget {
		budget = timeout
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	return expression.Evaluate(ctx, conn.Condition, map[string]any{
		"output":     output,
		"input_data": rc.InputData(),
		"variables":  rc.Variables,
	})
}

func elapsed(started, finished time.Time) int64 {
	return finished.Sub(started).Milliseconds()
}
