package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

// ExecutionRepository stores runs as JSON under <prefix>run:<id>. Idempotency keys map to
// the live run id under <prefix>idempotency:<sha256>, and <prefix>runs:<workflow> is a
// sorted set of run ids scored by creation time.
type ExecutionRepository struct {
	client goredis.UniversalClient
	logger *slog.Logger
	prefix string
}

func NewExecutionRepository(client goredis.UniversalClient, logger *slog.Logger, prefix string) *ExecutionRepository {
	return &ExecutionRepository{client: client, logger: logger, prefix: prefix}
}

func (r *ExecutionRepository) runKey(id string) string {
	return r.prefix + "run:" + id
}

func (r *ExecutionRepository) listKey(workflowID string) string {
	return r.prefix + "runs:" + workflowID
}

func (r *ExecutionRepository) idempotencyKey(scope string) string {
	sum := sha256.Sum256([]byte(scope))

	return r.prefix + "idempotency:" + hex.EncodeToString(sum[:])
}

func (r *ExecutionRepository) CreateRun(ctx context.Context, run *models.ExecutionRun) (*models.ExecutionRun, bool, error) {
	persistence.PrepareNewRun(run)

	data, err := json.Marshal(run)
	if err != nil {
		return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
	}

	store := func(pipe goredis.Pipeliner, idemKey string) {
		pipe.Set(ctx, r.runKey(run.ID), data, 0)
		pipe.ZAdd(ctx, r.listKey(run.WorkflowID), goredis.Z{Score: float64(run.CreatedAt.UnixMicro()), Member: run.ID})

		if idemKey != "" {
			pipe.Set(ctx, idemKey, run.ID, 0)
		}
	}

	scope := persistence.IdempotencyScope(run)
	if scope == "" {
		_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			store(pipe, "")

			return nil
		})
		if err != nil {
			return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
		}

		return run.Clone(), true, nil
	}

	idemKey := r.idempotencyKey(scope)

	var existing *models.ExecutionRun

	err = r.retry(ctx, func(tx *goredis.Tx) error {
		existing = nil

		existingID, err := tx.Get(ctx, idemKey).Result()
		if err != nil && !isMissing(err) {
			return err
		}

		if existingID != "" {
			current, err := r.load(ctx, tx, existingID)
			if err != nil && !errors.Is(err, persistence.ErrRunNotFound) {
				return err
			}

			if persistence.Reusable(current) {
				existing = current

				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			store(pipe, idemKey)

			return nil
		})

		return err
	}, idemKey)
	if err != nil {
		return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
	}

	if existing != nil {
		return existing, false, nil
	}

	return run.Clone(), true, nil
}

func (r *ExecutionRepository) AppendNodeLog(ctx context.Context, executionID string, record models.NodeExecutionRecord) error {
	_, err := r.update(ctx, executionID, func(run *models.ExecutionRun) error {
		return persistence.ApplyNodeLog(run, record)
	})
	if err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	return nil
}

func (r *ExecutionRepository) SetStatus(ctx context.Context, executionID string, update persistence.StatusUpdate) (*models.ExecutionRun, error) {
	run, err := r.update(ctx, executionID, func(run *models.ExecutionRun) error {
		return persistence.ApplyStatus(run, update)
	})
	if err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	return run, nil
}

func (r *ExecutionRepository) GetRun(ctx context.Context, executionID string) (*models.ExecutionRun, error) {
	run, err := r.load(ctx, r.client, executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("GetRun", executionID, err)
	}

	return run, nil
}

func (r *ExecutionRepository) ListRuns(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	if limit <= 0 {
		limit = persistence.DefaultListLimit
	}

	ids, err := r.client.ZRevRange(ctx, r.listKey(workflowID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs of workflow %s: %w", workflowID, err)
	}

	runs := make([]*models.ExecutionRun, 0, len(ids))
	if len(ids) == 0 {
		return runs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.runKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch runs of workflow %s: %w", workflowID, err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			r.logger.WarnContext(ctx, "Run listed but missing", "execution_id", ids[i])

			continue
		}

		var run models.ExecutionRun
		if err := json.Unmarshal([]byte(raw), &run); err != nil {
			return nil, fmt.Errorf("failed to decode run %s: %w", ids[i], err)
		}

		runs = append(runs, &run)
	}

	return runs, nil
}

func (r *ExecutionRepository) load(ctx context.Context, cmd goredis.Cmdable, executionID string) (*models.ExecutionRun, error) {
	var run models.ExecutionRun

	if err := getJSON(ctx, cmd, r.runKey(executionID), &run); err != nil {
		if isMissing(err) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, err
	}

	if run.NodeLogs == nil {
		run.NodeLogs = []models.NodeExecutionRecord{}
	}

	return &run, nil
}

// update applies mutate to the stored run inside a WATCH on its key.
func (r *ExecutionRepository) update(ctx context.Context, executionID string, mutate func(*models.ExecutionRun) error) (*models.ExecutionRun, error) {
	key := r.runKey(executionID)

	var result *models.ExecutionRun

	err := r.retry(ctx, func(tx *goredis.Tx) error {
		run, err := r.load(ctx, tx, executionID)
		if err != nil {
			return err
		}

		if err := mutate(run); err != nil {
			return err
		}

		data, err := json.Marshal(run)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			return nil
		})
		if err != nil {
			return err
		}

		result = run

		return nil
	}, key)

	return result, err
}

func (r *ExecutionRepository) retry(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return persistence.ErrConcurrentUpdate
}
