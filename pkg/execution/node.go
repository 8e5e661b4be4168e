package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/otelhelper"
	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
)

// executeNode runs one node under its policy and returns the record to append and, on
// success, the output to bind.
func (e *Engine) executeNode(
	ctx context.Context,
	logger *slog.Logger,
	rc *RunContext,
	node *models.WorkflowNode,
	inputs map[string]map[string]any,
	level int,
) (models.NodeExecutionRecord, map[string]any) {
	policy := node.Policy()
	nodeLogger := logger.With("node_id", node.ID, "node_type", node.Type)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "execution.node",
		attribute.String(otelhelper.ExecutionIDKey, rc.Run.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
		attribute.Int(otelhelper.LevelKey, level),
	)
	defer span.End()

	record := models.NodeExecutionRecord{
		NodeID:    node.ID,
		NodeType:  node.Type,
		StartedAt: e.now(),
	}

	fail := func(nodeErr *models.NodeError) (models.NodeExecutionRecord, map[string]any) {
		record.Status = models.NodeStatusFailed
		record.Error = nodeErr
		record.FinishedAt = e.now()
		record.DurationMs = elapsed(record.StartedAt, record.FinishedAt)

		otelhelper.SetError(span, nodeErr, attribute.String(otelhelper.NodeIDKey, node.ID))
		span.SetAttributes(attribute.String(otelhelper.NodeStatusKey, string(record.Status)))

		nodeLogger.WarnContext(ctx, "Node failed",
			"code", nodeErr.Code,
			"error", nodeErr.Message,
			"attempts", record.Attempts,
			"on_error", policy.OnError)

		return record, nil
	}

	handler, ok := e.registry.Get(node.Type)
	if !ok {
		return fail(&models.NodeError{
			Code:    models.NodeErrorUnknownNodeType,
			Message: fmt.Sprintf("no handler registered for node type %q", node.Type),
		})
	}

	if err := e.registry.ValidateConfig(node.Type, node.Config); err != nil {
		return fail(&models.NodeError{Code: models.NodeErrorInvalidConfig, Message: err.Error()})
	}

	operation := func() (map[string]any, error) {
		record.Attempts++
		span.SetAttributes(attribute.Int(otelhelper.NodeAttemptKey, record.Attempts))

		output, err := invoke(ctx, handler, policy.Timeout, protocol.Request{
			ExecutionID: rc.Run.ID,
			WorkflowID:  rc.Run.WorkflowID,
			NodeID:      node.ID,
			Config:      node.Config,
			Inputs:      inputs,
			InputData:   rc.InputData(),
			Variables:   rc.Variables,
			Attempt:     record.Attempts,
			Logger:      nodeLogger,
		})
		if err == nil {
			return output, nil
		}

		if ctx.Err() != nil || !retryable(err) {
			return nil, backoff.Permanent(err)
		}

		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		nodeLogger.InfoContext(ctx, "Retrying node",
			"attempt", record.Attempts,
			"wait_ms", wait.Milliseconds(),
			"error", err)
	}

	output, err := backoff.RetryNotifyWithData(operation, backoff.WithContext(retryPolicy(policy), ctx), notify)
	if err != nil {
		return fail(nodes.Classify(err))
	}

	if output == nil {
		output = map[string]any{}
	}

	record.Status = models.NodeStatusSucceeded
	record.Output = output
	record.FinishedAt = e.now()
	record.DurationMs = elapsed(record.StartedAt, record.FinishedAt)

	span.SetAttributes(attribute.String(otelhelper.NodeStatusKey, string(record.Status)))
	nodeLogger.InfoContext(ctx, "Node succeeded", "attempts", record.Attempts, "duration_ms", record.DurationMs)

	return record, output
}

// retryPolicy is exponential with no jitter: base, base*2, base*4 ... capped at the max
// delay, for at most RetryCount retries. Nodes without the retry policy run once.
//
//nolint:ireturn // backoff policies are composed through the interface
func retryPolicy(policy models.NodePolicy) backoff.BackOff {
	if policy.OnError != models.OnErrorRetry || policy.RetryCount <= 0 {
		return &backoff.StopBackOff{}
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = policy.RetryBaseDelay
	exponential.RandomizationFactor = 0
	exponential.Multiplier = 2
	exponential.MaxInterval = policy.RetryMaxDelay
	exponential.MaxElapsedTime = 0
	exponential.Reset()

	return backoff.WithMaxRetries(exponential, uint64(policy.RetryCount))
}

func retryable(err error) bool {
	var (
		configErr *nodes.ConfigError
		exprErr   *nodes.ExpressionError
	)

	return !errors.As(err, &configErr) && !errors.As(err, &exprErr)
}

type invocation struct {
	output map[string]any
	err    error
}

// invoke calls the handler under the node timeout. A handler that ignores its context is
// abandoned when the timeout fires; a panicking handler fails the attempt.
func invoke(ctx context.Context, handler protocol.Handler, timeout time.Duration, req protocol.Request) (map[string]any, error) {
	nodeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan invocation, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()

		output, err := handler.Execute(nodeCtx, req)
		done <- invocation{output: output, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil && ctx.Err() == nil && errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
			return nil, &nodes.TimeoutError{Op: req.NodeID, Err: result.err}
		}

		return result.output, result.err
	case <-nodeCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &nodes.TimeoutError{Op: req.NodeID, Err: context.DeadlineExceeded}
	}
}
