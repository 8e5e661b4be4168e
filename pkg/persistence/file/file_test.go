package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRepository_Contract(t *testing.T) {
	testutil.RunExecutionRepositorySuite(t, NewPersistence(t.TempDir()).ExecutionRepository())
}

func TestWorkflowRepository_Contract(t *testing.T) {
	testutil.RunWorkflowRepositorySuite(t, NewPersistence("file://"+t.TempDir()).WorkflowRepository())
}

func TestPersistence_HealthCheck(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, NewPersistence(root).HealthCheck(context.Background()))
	require.Error(t, NewPersistence(filepath.Join(root, "missing")).HealthCheck(context.Background()))
}

func TestExecutionRepository_RejectsPathTraversal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	repo := NewExecutionRepository(root)
	ctx := context.Background()

	for _, id := range []string{"../escape", "a/b", `a\b`, ""} {
		_, _, err := repo.CreateRun(ctx, &models.ExecutionRun{ID: id, WorkflowID: "wf"})
		require.Error(t, err, id)

		_, err = repo.GetRun(ctx, id)
		require.ErrorIs(t, err, persistence.ErrRunNotFound, id)
	}

	_, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecutionRepository_SurvivesReopen(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx := context.Background()

	run, _, err := NewExecutionRepository(root).CreateRun(ctx, testutil.CreateTestRun("wf", testutil.WithIdempotencyKey("k")))
	require.NoError(t, err)

	reopened := NewExecutionRepository(root)

	again, isNew, err := reopened.CreateRun(ctx, testutil.CreateTestRun("wf", testutil.WithIdempotencyKey("k")))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, run.ID, again.ID)
}

func TestWorkflowRepository_GetAllEmpty(t *testing.T) {
	t.Parallel()

	workflows, err := NewWorkflowRepository(t.TempDir()).GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, workflows)
}
