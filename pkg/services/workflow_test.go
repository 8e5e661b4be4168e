package services

import (
	"testing"

	"github.com/autoflow-io/autoflow/pkg/graph"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_Create(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	service := NewWorkflow(env.persistence, env.registry, env.logger)

	created, err := service.Create(t.Context(), triggerThenDelay("1s"))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Delayed", fetched.Name)
	assert.Len(t, fetched.Nodes, 2)

	all, err := service.FetchAll(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWorkflow_CreateRejectsInvalidWorkflows(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	service := NewWorkflow(env.persistence, env.registry, env.logger)

	cyclic := triggerThenDelay("1s")
	cyclic.Nodes = append(cyclic.Nodes,
		&models.WorkflowNode{ID: "x", Type: models.NodeTypeDelay, Config: map[string]any{"duration": 1}},
		&models.WorkflowNode{ID: "y", Type: models.NodeTypeDelay, Config: map[string]any{"duration": 1}},
	)
	cyclic.Connections = append(cyclic.Connections,
		&models.Connection{ID: "c2", From: "wait", To: "x"},
		&models.Connection{ID: "c3", From: "x", To: "y"},
		&models.Connection{ID: "c4", From: "y", To: "x"},
	)

	missingDuration := triggerThenDelay("1s")
	missingDuration.Nodes[1].Config = map[string]any{}

	badCondition := triggerThenDelay("1s")
	badCondition.Connections[0].Condition = "output.("

	unnamed := triggerThenDelay("1s")
	unnamed.Name = ""

	tests := []struct {
		name     string
		workflow *models.Workflow
		target   error
	}{
		{name: "nil workflow", workflow: nil, target: ErrWorkflowNil},
		{name: "missing name", workflow: unnamed, target: ErrWorkflowNameRequired},
		{name: "no nodes", workflow: &models.Workflow{Name: "empty"}, target: ErrNodesRequired},
		{name: "cycle", workflow: cyclic, target: graph.ErrInvalidGraph},
		{name: "invalid node config", workflow: missingDuration, target: ErrInvalidNodeConfig},
		{name: "broken condition", workflow: badCondition, target: ErrInvalidCondition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(t.Context(), tt.workflow)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.True(t, IsValidationError(err))
		})
	}

	all, err := service.FetchAll(t.Context())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWorkflow_CreateAcceptsUnregisteredNodeTypes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	service := NewWorkflow(env.persistence, env.registry, env.logger)

	workflow := triggerThenDelay("1s")
	workflow.Nodes[1].Type = "plugin_only"

	_, err := service.Create(t.Context(), workflow)
	require.NoError(t, err)
}

func TestWorkflow_Update(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	service := NewWorkflow(env.persistence, env.registry, env.logger)

	created, err := service.Create(t.Context(), triggerThenDelay("1s"))
	require.NoError(t, err)

	replacement := triggerThenDelay("2s")
	replacement.Name = "Renamed"

	updated, err := service.Update(t.Context(), created.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	fetched, err := service.FetchByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fetched.Name)
	assert.Equal(t, "2s", fetched.Nodes[1].Config["duration"])

	_, err = service.Update(t.Context(), "missing", triggerThenDelay("1s"))
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_Delete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	service := NewWorkflow(env.persistence, env.registry, env.logger)

	created, err := service.Create(t.Context(), triggerThenDelay("1s"))
	require.NoError(t, err)

	require.NoError(t, service.Delete(t.Context(), created.ID))

	_, err = service.FetchByID(t.Context(), created.ID)
	assert.True(t, IsNotFound(err))

	err = service.Delete(t.Context(), created.ID)
	assert.True(t, IsNotFound(err))
}

func TestWorkflow_Validate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	service := NewWorkflow(env.persistence, env.registry, env.logger)

	workflow := triggerThenDelay("1s")
	workflow.Nodes = append(workflow.Nodes, &models.WorkflowNode{
		ID:     "check",
		Type:   models.NodeTypeCondition,
		Config: map[string]any{"expression": "true"},
	})
	workflow.Connections = append(workflow.Connections, &models.Connection{ID: "c2", From: "start", To: "check"})

	created, err := service.Create(t.Context(), workflow)
	require.NoError(t, err)

	summary, err := service.Validate(t.Context(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, summary.WorkflowID)
	assert.Equal(t, []string{"start"}, summary.Roots)
	assert.Equal(t, []string{"start", "wait", "check"}, summary.Order)
	assert.Equal(t, [][]string{{"start"}, {"wait", "check"}}, summary.Levels)

	_, err = service.Validate(t.Context(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestWorkflow_HealthCheck(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	service := NewWorkflow(env.persistence, env.registry, env.logger)

	message, ok := service.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}
