package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunExecutionRepositorySuite checks the execution store contract against repo. Every
// implementation runs it from its own tests.
func RunExecutionRepositorySuite(t *testing.T, repo persistence.ExecutionRepository) {
	t.Helper()

	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		run := CreateTestRun("wf-create")

		created, isNew, err := repo.CreateRun(ctx, run)
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.Equal(t, models.ExecutionStatusQueued, created.Status)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "wf-create", got.WorkflowID)
		assert.Equal(t, "test", got.InputData["source"])
		assert.Empty(t, got.NodeLogs)
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := repo.GetRun(ctx, "does-not-exist")
		require.ErrorIs(t, err, persistence.ErrRunNotFound)

		err = repo.AppendNodeLog(ctx, "does-not-exist", models.NodeExecutionRecord{NodeID: "a"})
		require.ErrorIs(t, err, persistence.ErrRunNotFound)

		_, err = repo.SetStatus(ctx, "does-not-exist", persistence.StatusUpdate{Status: models.ExecutionStatusRunning})
		require.ErrorIs(t, err, persistence.ErrRunNotFound)
	})

	t.Run("idempotent create", func(t *testing.T) {
		first, isNew, err := repo.CreateRun(ctx, CreateTestRun("wf-idem", WithIdempotencyKey("k1"), WithOwner("u1")))
		require.NoError(t, err)
		require.True(t, isNew)

		second, isNew, err := repo.CreateRun(ctx, CreateTestRun("wf-idem", WithIdempotencyKey("k1"), WithOwner("u1")))
		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Equal(t, first.ID, second.ID)

		other, isNew, err := repo.CreateRun(ctx, CreateTestRun("wf-idem", WithIdempotencyKey("k1"), WithOwner("u2")))
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.NotEqual(t, first.ID, other.ID)
	})

	t.Run("concurrent idempotent create", func(t *testing.T) {
		const callers = 8

		ids := make([]string, callers)

		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				run, _, err := repo.CreateRun(ctx, CreateTestRun("wf-race", WithIdempotencyKey("same")))
				assert.NoError(t, err)

				if run != nil {
					ids[i] = run.ID
				}
			}()
		}

		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id)
		}
	})

	t.Run("failed run under key is replaced", func(t *testing.T) {
		first, _, err := repo.CreateRun(ctx, CreateTestRun("wf-retry", WithIdempotencyKey("k")))
		require.NoError(t, err)

		_, err = repo.SetStatus(ctx, first.ID, persistence.StatusUpdate{Status: models.ExecutionStatusFailed})
		require.NoError(t, err)

		second, isNew, err := repo.CreateRun(ctx, CreateTestRun("wf-retry", WithIdempotencyKey("k")))
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.NotEqual(t, first.ID, second.ID)

		third, isNew, err := repo.CreateRun(ctx, CreateTestRun("wf-retry", WithIdempotencyKey("k")))
		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Equal(t, second.ID, third.ID)
	})

	t.Run("succeeded run under key is returned unchanged", func(t *testing.T) {
		first, _, err := repo.CreateRun(ctx, CreateTestRun("wf-done", WithIdempotencyKey("k")))
		require.NoError(t, err)

		_, err = repo.SetStatus(ctx, first.ID, persistence.StatusUpdate{Status: models.ExecutionStatusRunning})
		require.NoError(t, err)
		require.NoError(t, repo.AppendNodeLog(ctx, first.ID, models.NodeExecutionRecord{NodeID: "a", Status: models.NodeStatusSucceeded}))
		_, err = repo.SetStatus(ctx, first.ID, persistence.StatusUpdate{Status: models.ExecutionStatusSucceeded})
		require.NoError(t, err)

		again, isNew, err := repo.CreateRun(ctx, CreateTestRun("wf-done", WithIdempotencyKey("k")))
		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, models.ExecutionStatusSucceeded, again.Status)
		assert.Len(t, again.NodeLogs, 1)
	})

	t.Run("status lifecycle", func(t *testing.T) {
		run, _, err := repo.CreateRun(ctx, CreateTestRun("wf-status"))
		require.NoError(t, err)

		at := time.Now().UTC().Truncate(time.Millisecond)

		updated, err := repo.SetStatus(ctx, run.ID, persistence.StatusUpdate{Status: models.ExecutionStatusRunning, At: at})
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusRunning, updated.Status)
		require.NotNil(t, updated.StartedAt)
		assert.WithinDuration(t, at, *updated.StartedAt, time.Millisecond)

		_, err = repo.SetStatus(ctx, run.ID, persistence.StatusUpdate{Status: models.ExecutionStatusQueued})
		require.ErrorIs(t, err, persistence.ErrInvalidTransition)

		cause := &models.NodeError{Code: models.NodeErrorTimeout, Message: "slow"}
		updated, err = repo.SetStatus(ctx, run.ID, persistence.StatusUpdate{Status: models.ExecutionStatusFailed, Error: cause})
		require.NoError(t, err)
		require.NotNil(t, updated.FinishedAt)
		require.NotNil(t, updated.Error)
		assert.Equal(t, models.NodeErrorTimeout, updated.Error.Code)

		for _, next := range []models.ExecutionStatus{
			models.ExecutionStatusRunning,
			models.ExecutionStatusSucceeded,
			models.ExecutionStatusPartiallyFailed,
		} {
			_, err = repo.SetStatus(ctx, run.ID, persistence.StatusUpdate{Status: next})
			require.ErrorIs(t, err, persistence.ErrInvalidTransition)
		}

		got, err := repo.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusFailed, got.Status)
	})

	t.Run("node logs are append only", func(t *testing.T) {
		run, _, err := repo.CreateRun(ctx, CreateTestRun("wf-logs"))
		require.NoError(t, err)

		_, err = repo.SetStatus(ctx, run.ID, persistence.StatusUpdate{Status: models.ExecutionStatusRunning})
		require.NoError(t, err)

		now := time.Now().UTC().Truncate(time.Millisecond)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, repo.AppendNodeLog(ctx, run.ID, models.NodeExecutionRecord{
				NodeID:     id,
				NodeType:   models.NodeTypeAction,
				Status:     models.NodeStatusSucceeded,
				Attempts:   1,
				StartedAt:  now,
				FinishedAt: now,
				Output:     map[string]any{"node": id},
			}))
		}

		err = repo.AppendNodeLog(ctx, run.ID, models.NodeExecutionRecord{NodeID: "b", Status: models.NodeStatusFailed})
		require.ErrorIs(t, err, persistence.ErrNodeAlreadyLogged)

		_, err = repo.SetStatus(ctx, run.ID, persistence.StatusUpdate{Status: models.ExecutionStatusSucceeded})
		require.NoError(t, err)

		err = repo.AppendNodeLog(ctx, run.ID, models.NodeExecutionRecord{NodeID: "d"})
		require.ErrorIs(t, err, persistence.ErrRunAlreadyTerminal)

		got, err := repo.GetRun(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, got.NodeLogs, 3)

		for i, id := range []string{"a", "b", "c"} {
			assert.Equal(t, id, got.NodeLogs[i].NodeID)
			assert.Equal(t, models.NodeStatusSucceeded, got.NodeLogs[i].Status)
			assert.Equal(t, id, got.NodeLogs[i].Output["node"])
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		run, _, err := repo.CreateRun(ctx, CreateTestRun("wf-concurrent"))
		require.NoError(t, err)

		_, err = repo.SetStatus(ctx, run.ID, persistence.StatusUpdate{Status: models.ExecutionStatusRunning})
		require.NoError(t, err)

		nodeIDs := []string{"n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7"}

		var wg sync.WaitGroup
		for _, id := range nodeIDs {
			wg.Add(1)

			go func() {
				defer wg.Done()

				assert.NoError(t, repo.AppendNodeLog(ctx, run.ID, models.NodeExecutionRecord{NodeID: id, Status: models.NodeStatusSucceeded}))
			}()
		}

		wg.Wait()

		got, err := repo.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Len(t, got.NodeLogs, len(nodeIDs))
	})

	t.Run("list runs newest first", func(t *testing.T) {
		base := time.Now().UTC().Add(-time.Hour)

		for i := range 3 {
			_, _, err := repo.CreateRun(ctx, CreateTestRun("wf-list", func(r *models.ExecutionRun) {
				r.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			}))
			require.NoError(t, err)
		}

		runs, err := repo.ListRuns(ctx, "wf-list", 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.True(t, runs[0].CreatedAt.After(runs[1].CreatedAt))
		assert.True(t, runs[1].CreatedAt.After(runs[2].CreatedAt))

		runs, err = repo.ListRuns(ctx, "wf-list", 2)
		require.NoError(t, err)
		assert.Len(t, runs, 2)

		runs, err = repo.ListRuns(ctx, "wf-none", 10)
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

// RunWorkflowRepositorySuite checks the workflow repository contract.
func RunWorkflowRepositorySuite(t *testing.T, repo persistence.WorkflowRepository) {
	t.Helper()

	ctx := context.Background()

	workflow := CreateTestWorkflow(
		[]*models.WorkflowNode{
			CreateTestNode("start", WithTriggerNode()),
			CreateTestNode("call", WithConfig(map[string]any{"url": "https://example.com", "on_error": "continue"})),
		},
		ConditionalEdge("start", "call", "output.ok === true"),
	)

	require.NoError(t, repo.Save(ctx, workflow))
	assert.False(t, workflow.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, got.Name)
	require.Len(t, got.Nodes, 2)
	assert.Equal(t, "continue", got.Nodes[1].Config["on_error"])
	require.Len(t, got.Connections, 1)
	assert.Equal(t, "output.ok === true", got.Connections[0].Condition)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	require.NoError(t, repo.Delete(ctx, workflow.ID))

	_, err = repo.GetByID(ctx, workflow.ID)
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	err = repo.Delete(ctx, workflow.ID)
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}
