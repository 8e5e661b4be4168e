package persistence

import (
	"testing"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyStatus_Lifecycle(t *testing.T) {
	t.Parallel()

	run := &models.ExecutionRun{ID: "r1"}
	PrepareNewRun(run)
	require.Equal(t, models.ExecutionStatusQueued, run.Status)

	started := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, ApplyStatus(run, StatusUpdate{Status: models.ExecutionStatusRunning, At: started}))
	assert.Equal(t, started, *run.StartedAt)
	assert.Nil(t, run.FinishedAt)

	finished := started.Add(time.Minute)
	cause := &models.NodeError{Code: models.NodeErrorCancelled, Message: "cancelled"}
	require.NoError(t, ApplyStatus(run, StatusUpdate{Status: models.ExecutionStatusFailed, At: finished, Error: cause}))
	assert.Equal(t, finished, *run.FinishedAt)
	assert.Equal(t, cause, run.Error)
	assert.Equal(t, int64(3), run.Version)
}

func TestApplyStatus_TerminalIsFinal(t *testing.T) {
	t.Parallel()

	for _, terminal := range []models.ExecutionStatus{
		models.ExecutionStatusSucceeded,
		models.ExecutionStatusFailed,
		models.ExecutionStatusPartiallyFailed,
	} {
		for _, next := range []models.ExecutionStatus{
			models.ExecutionStatusQueued,
			models.ExecutionStatusRunning,
			models.ExecutionStatusSucceeded,
			models.ExecutionStatusFailed,
			models.ExecutionStatusPartiallyFailed,
		} {
			run := &models.ExecutionRun{Status: terminal}
			err := ApplyStatus(run, StatusUpdate{Status: next})
			require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", terminal, next)
			assert.Equal(t, terminal, run.Status)
		}
	}
}

func TestApplyStatus_InvalidTransitions(t *testing.T) {
	t.Parallel()

	run := &models.ExecutionRun{Status: models.ExecutionStatusQueued}
	require.ErrorIs(t, ApplyStatus(run, StatusUpdate{Status: models.ExecutionStatusSucceeded}), ErrInvalidTransition)
	require.ErrorIs(t, ApplyStatus(run, StatusUpdate{Status: "paused"}), ErrInvalidTransition)
	require.NoError(t, ApplyStatus(run, StatusUpdate{Status: models.ExecutionStatusFailed}))
	assert.NotNil(t, run.FinishedAt)
	assert.Nil(t, run.StartedAt)
}

func TestApplyNodeLog(t *testing.T) {
	t.Parallel()

	run := &models.ExecutionRun{Status: models.ExecutionStatusRunning}

	require.NoError(t, ApplyNodeLog(run, models.NodeExecutionRecord{NodeID: "a"}))
	require.ErrorIs(t, ApplyNodeLog(run, models.NodeExecutionRecord{NodeID: "a"}), ErrNodeAlreadyLogged)
	require.NoError(t, ApplyNodeLog(run, models.NodeExecutionRecord{NodeID: "b"}))

	run.Status = models.ExecutionStatusSucceeded
	require.ErrorIs(t, ApplyNodeLog(run, models.NodeExecutionRecord{NodeID: "c"}), ErrRunAlreadyTerminal)
	assert.Len(t, run.NodeLogs, 2)
}

func TestReusable(t *testing.T) {
	t.Parallel()

	assert.False(t, Reusable(nil))
	assert.False(t, Reusable(&models.ExecutionRun{Status: models.ExecutionStatusFailed}))
	assert.True(t, Reusable(&models.ExecutionRun{Status: models.ExecutionStatusSucceeded}))
	assert.True(t, Reusable(&models.ExecutionRun{Status: models.ExecutionStatusRunning}))
	assert.True(t, Reusable(&models.ExecutionRun{Status: models.ExecutionStatusPartiallyFailed}))
}

func TestIdempotencyScope(t *testing.T) {
	t.Parallel()

	assert.Empty(t, IdempotencyScope(&models.ExecutionRun{WorkflowID: "wf"}))

	a := IdempotencyScope(&models.ExecutionRun{WorkflowID: "wf", Owner: "u1", IdempotencyKey: "k"})
	b := IdempotencyScope(&models.ExecutionRun{WorkflowID: "wf", Owner: "u2", IdempotencyKey: "k"})
	assert.NotEqual(t, a, b)
}

func TestErrorWrapping(t *testing.T) {
	t.Parallel()

	err := NewExecutionError("AppendNodeLog", "r1", ErrRunAlreadyTerminal)
	assert.ErrorIs(t, err, ErrRunAlreadyTerminal)
	assert.True(t, IsStateConflict(err))
	assert.False(t, IsRunNotFound(err))
	assert.Contains(t, err.Error(), "r1")

	wfErr := NewWorkflowError("GetByID", "wf", ErrWorkflowNotFound)
	assert.True(t, IsWorkflowNotFound(wfErr))
}
