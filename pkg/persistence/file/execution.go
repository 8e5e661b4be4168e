package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
)

const lockStripes = 64

// ExecutionRepository stores one JSON document per run plus one index document per
// idempotency scope. Writers are serialized per run through striped locks, which makes the
// store linearizable per execution id within a single process.
type ExecutionRepository struct {
	root    string
	indexMu sync.Mutex
	stripes [lockStripes]sync.Mutex
}

type idempotencyIndex struct {
	ExecutionID string `json:"execution_id"`
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (er *ExecutionRepository) runPath(id string) string {
	return filepath.Join(er.root, "executions", id+".json")
}

func (er *ExecutionRepository) indexPath(scope string) string {
	sum := sha256.Sum256([]byte(scope))

	return filepath.Join(er.root, "idempotency", hex.EncodeToString(sum[:])+".json")
}

func (er *ExecutionRepository) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))

	mu := &er.stripes[h.Sum32()%lockStripes]
	mu.Lock()

	return mu.Unlock
}

func (er *ExecutionRepository) load(id string) (*models.ExecutionRun, error) {
	if err := validateID(id); err != nil {
		return nil, persistence.ErrRunNotFound
	}

	var run models.ExecutionRun

	err := readJSON(er.runPath(id), &run)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	return &run, nil
}

func (er *ExecutionRepository) CreateRun(_ context.Context, run *models.ExecutionRun) (*models.ExecutionRun, bool, error) {
	if err := validateID(run.ID); err != nil {
		return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
	}

	persistence.PrepareNewRun(run)

	scope := persistence.IdempotencyScope(run)
	if scope != "" {
		er.indexMu.Lock()
		defer er.indexMu.Unlock()

		var index idempotencyIndex

		err := readJSON(er.indexPath(scope), &index)
		switch {
		case err == nil:
			unlock := er.lock(index.ExecutionID)
			existing, loadErr := er.load(index.ExecutionID)
			unlock()

			if loadErr != nil && !persistence.IsRunNotFound(loadErr) {
				return nil, false, persistence.NewExecutionError("CreateRun", index.ExecutionID, loadErr)
			}

			if persistence.Reusable(existing) {
				return existing, false, nil
			}
		case !os.IsNotExist(err):
			return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
		}
	}

	unlock := er.lock(run.ID)
	err := writeJSON(er.runPath(run.ID), run)
	unlock()

	if err != nil {
		return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
	}

	if scope != "" {
		if err := writeJSON(er.indexPath(scope), idempotencyIndex{ExecutionID: run.ID}); err != nil {
			return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
		}
	}

	return run.Clone(), true, nil
}

func (er *ExecutionRepository) AppendNodeLog(_ context.Context, executionID string, record models.NodeExecutionRecord) error {
	defer er.lock(executionID)()

	run, err := er.load(executionID)
	if err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	if err := persistence.ApplyNodeLog(run, record); err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	if err := writeJSON(er.runPath(executionID), run); err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	return nil
}

func (er *ExecutionRepository) SetStatus(_ context.Context, executionID string, update persistence.StatusUpdate) (*models.ExecutionRun, error) {
	defer er.lock(executionID)()

	run, err := er.load(executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	if err := persistence.ApplyStatus(run, update); err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	if err := writeJSON(er.runPath(executionID), run); err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	return run, nil
}

func (er *ExecutionRepository) GetRun(_ context.Context, executionID string) (*models.ExecutionRun, error) {
	defer er.lock(executionID)()

	run, err := er.load(executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("GetRun", executionID, err)
	}

	return run, nil
}

func (er *ExecutionRepository) ListRuns(_ context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	if limit <= 0 {
		limit = persistence.DefaultListLimit
	}

	jsonFiles, err := fs.Glob(os.DirFS(filepath.Join(er.root, "executions")), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	runs := make([]*models.ExecutionRun, 0)

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		unlock := er.lock(id)
		run, err := er.load(id)
		unlock()

		if err != nil {
			if persistence.IsRunNotFound(err) {
				continue
			}

			return nil, err
		}

		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}
