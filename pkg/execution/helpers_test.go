package execution_test

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/autoflow-io/autoflow/pkg/execution"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes/condition"
	"github.com/autoflow-io/autoflow/pkg/nodes/delay"
	"github.com/autoflow-io/autoflow/pkg/nodes/trigger"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/persistence/file"
	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/autoflow-io/autoflow/pkg/registry"
	"github.com/stretchr/testify/require"
)

type funcHandler struct {
	nodeType string
	fn       func(ctx context.Context, req protocol.Request) (map[string]any, error)
}

func (h *funcHandler) Type() string {
	return h.nodeType
}

func (h *funcHandler) Validate(map[string]any) error {
	return nil
}

func (h *funcHandler) Execute(ctx context.Context, req protocol.Request) (map[string]any, error) {
	return h.fn(ctx, req)
}

// echo reports which node ran and which upstream outputs it received.
func echo() *funcHandler {
	return &funcHandler{nodeType: "echo", fn: func(_ context.Context, req protocol.Request) (map[string]any, error) {
		upstream := make([]string, 0, len(req.Inputs))
		for id := range req.Inputs {
			upstream = append(upstream, id)
		}

		slices.Sort(upstream)

		return map[string]any{"node": req.NodeID, "upstream": strings.Join(upstream, ",")}, nil
	}}
}

type fixture struct {
	engine    *execution.Engine
	store     persistence.ExecutionRepository
	workflows persistence.WorkflowRepository
}

func newFixture(t *testing.T, opts execution.Options, handlers ...protocol.Handler) *fixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.DiscardHandler)

	reg := registry.NewRegistry(logger)
	reg.Register(trigger.New())
	reg.Register(condition.New())
	reg.Register(delay.New())
	reg.Register(echo())

	for _, handler := range handlers {
		reg.Register(handler)
	}

	opts.Store = p.ExecutionRepository()
	opts.Workflows = p.WorkflowRepository()
	opts.Registry = reg
	opts.Logger = logger

	engine := execution.NewEngine(opts)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = engine.Close(ctx)
	})

	return &fixture{engine: engine, store: opts.Store, workflows: opts.Workflows}
}

func (f *fixture) save(t *testing.T, workflow *models.Workflow) *models.Workflow {
	t.Helper()

	require.NoError(t, f.workflows.Save(context.Background(), workflow))

	return workflow
}

func logIDs(run *models.ExecutionRun) []string {
	ids := make([]string, len(run.NodeLogs))
	for i, record := range run.NodeLogs {
		ids[i] = record.NodeID
	}

	return ids
}

func logFor(t *testing.T, run *models.ExecutionRun, nodeID string) models.NodeExecutionRecord {
	t.Helper()

	for _, record := range run.NodeLogs {
		if record.NodeID == nodeID {
			return record
		}
	}

	t.Fatalf("no log for node %s in %v", nodeID, logIDs(run))

	return models.NodeExecutionRecord{}
}
