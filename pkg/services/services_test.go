package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/autoflow-io/autoflow/pkg/execution"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes/condition"
	"github.com/autoflow-io/autoflow/pkg/nodes/delay"
	"github.com/autoflow-io/autoflow/pkg/nodes/trigger"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/persistence/file"
	"github.com/autoflow-io/autoflow/pkg/registry"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	engine      *execution.Engine
	logger      *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	p := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.Register(trigger.New())
	reg.Register(condition.New())
	reg.Register(delay.New())

	engine := execution.NewEngine(execution.Options{
		Store:     p.ExecutionRepository(),
		Workflows: p.WorkflowRepository(),
		Registry:  reg,
		Logger:    logger,
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = engine.Close(ctx)
	})

	return &testEnv{persistence: p, registry: reg, engine: engine, logger: logger}
}

func triggerThenDelay(duration string) *models.Workflow {
	return &models.Workflow{
		Name: "Delayed",
		Nodes: []*models.WorkflowNode{
			{ID: "start", Type: models.NodeTypeTrigger, Name: "Start"},
			{ID: "wait", Type: models.NodeTypeDelay, Name: "Wait", Config: map[string]any{"duration": duration}},
		},
		Connections: []*models.Connection{{ID: "c1", From: "start", To: "wait"}},
	}
}

func waitForTerminal(t *testing.T, service *Execution, executionID string) *StatusResponse {
	t.Helper()

	var status *StatusResponse

	require.Eventually(t, func() bool {
		var err error

		status, err = service.Status(context.Background(), executionID)
		require.NoError(t, err)

		return status.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	return status
}
