package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
)

// ExecutionRepository is the PostgreSQL execution store. Writers lock the run row with
// SELECT ... FOR UPDATE; run creation under an idempotency key takes a transaction-scoped
// advisory lock on the key.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const selectRun = `
	SELECT
		id
	  , workflow_id
	  , COALESCE(idempotency_key, '')
	  , owner
	  , status
	  , input_data
	  , error
	  , created_at
	  , started_at
	  , finished_at
	  , version
	FROM execution_runs
`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *ExecutionRepository) CreateRun(ctx context.Context, run *models.ExecutionRun) (*models.ExecutionRun, bool, error) {
	persistence.PrepareNewRun(run)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
	}

	defer func() { _ = tx.Rollback() }()

	if scope := persistence.IdempotencyScope(run); scope != "" {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, scope); err != nil {
			return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
		}

		existing, err := scanRun(tx.QueryRowContext(ctx, selectRun+`
			WHERE workflow_id = $1 AND owner = $2 AND idempotency_key = $3 AND superseded = false
			FOR UPDATE
		`, run.WorkflowID, run.Owner, run.IdempotencyKey))

		switch {
		case err == nil && persistence.Reusable(existing):
			if err := loadNodeLogs(ctx, tx, existing); err != nil {
				return nil, false, persistence.NewExecutionError("CreateRun", existing.ID, err)
			}

			if err := tx.Commit(); err != nil {
				return nil, false, persistence.NewExecutionError("CreateRun", existing.ID, err)
			}

			return existing, false, nil
		case err == nil:
			if _, err := tx.ExecContext(ctx, `UPDATE execution_runs SET superseded = true WHERE id = $1`, existing.ID); err != nil {
				return nil, false, persistence.NewExecutionError("CreateRun", existing.ID, err)
			}
		case !errors.Is(err, sql.ErrNoRows):
			return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
		}
	}

	inputData, err := jsonValue(run.InputData)
	if err != nil {
		return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
	}

	var idempotencyKey sql.NullString
	if run.IdempotencyKey != "" {
		idempotencyKey = sql.NullString{String: run.IdempotencyKey, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO execution_runs (id, workflow_id, idempotency_key, owner, status, input_data, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.WorkflowID, idempotencyKey, run.Owner, run.Status, inputData, run.CreatedAt, run.Version)
	if err != nil {
		return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, persistence.NewExecutionError("CreateRun", run.ID, err)
	}

	return run.Clone(), true, nil
}

func (r *ExecutionRepository) AppendNodeLog(ctx context.Context, executionID string, record models.NodeExecutionRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	defer func() { _ = tx.Rollback() }()

	run, err := lockRun(ctx, tx, executionID)
	if err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	if run.Status.IsTerminal() {
		return persistence.NewExecutionError("AppendNodeLog", executionID, persistence.ErrRunAlreadyTerminal)
	}

	var (
		exists bool
		seq    int
	)

	err = tx.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM execution_node_logs WHERE execution_id = $1 AND node_id = $2)
		  , COALESCE((SELECT MAX(seq) FROM execution_node_logs WHERE execution_id = $1), 0) + 1
	`, executionID, record.NodeID).Scan(&exists, &seq)
	if err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	if exists {
		return persistence.NewExecutionError("AppendNodeLog", executionID,
			fmt.Errorf("%w: %s", persistence.ErrNodeAlreadyLogged, record.NodeID))
	}

	output, err := jsonValue(record.Output)
	if err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	nodeErr, err := jsonValue(record.Error)
	if err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO execution_node_logs
			(execution_id, seq, node_id, node_type, status, attempts, started_at, finished_at, duration_ms, output, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, executionID, seq, record.NodeID, record.NodeType, record.Status, record.Attempts,
		nullTime(record.StartedAt), nullTime(record.FinishedAt), record.DurationMs, output, nodeErr)
	if err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE execution_runs SET version = version + 1 WHERE id = $1`, executionID); err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	if err := tx.Commit(); err != nil {
		return persistence.NewExecutionError("AppendNodeLog", executionID, err)
	}

	return nil
}

func (r *ExecutionRepository) SetStatus(ctx context.Context, executionID string, update persistence.StatusUpdate) (*models.ExecutionRun, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	defer func() { _ = tx.Rollback() }()

	run, err := lockRun(ctx, tx, executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	if err := persistence.ApplyStatus(run, update); err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	runErr, err := jsonValue(run.Error)
	if err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE execution_runs
		SET status = $2, started_at = $3, finished_at = $4, error = $5, version = $6
		WHERE id = $1
	`, executionID, run.Status, run.StartedAt, run.FinishedAt, runErr, run.Version)
	if err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	if err := loadNodeLogs(ctx, tx, run); err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, persistence.NewExecutionError("SetStatus", executionID, err)
	}

	return run, nil
}

func (r *ExecutionRepository) GetRun(ctx context.Context, executionID string) (*models.ExecutionRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, selectRun+` WHERE id = $1`, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetRun", executionID, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewExecutionError("GetRun", executionID, err)
	}

	if err := loadNodeLogs(ctx, r.db, run); err != nil {
		return nil, persistence.NewExecutionError("GetRun", executionID, err)
	}

	return run, nil
}

func (r *ExecutionRepository) ListRuns(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	if limit <= 0 {
		limit = persistence.DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, selectRun+` WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT $2`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution runs: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.ExecutionRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution runs: %w", err)
	}

	for _, run := range runs {
		if err := loadNodeLogs(ctx, r.db, run); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func lockRun(ctx context.Context, tx *sql.Tx, executionID string) (*models.ExecutionRun, error) {
	run, err := scanRun(tx.QueryRowContext(ctx, selectRun+` WHERE id = $1 FOR UPDATE`, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, err
	}

	return run, nil
}

func scanRun(row rowScanner) (*models.ExecutionRun, error) {
	var (
		run        models.ExecutionRun
		inputData  []byte
		runErr     []byte
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.IdempotencyKey,
		&run.Owner,
		&run.Status,
		&inputData,
		&runErr,
		&run.CreatedAt,
		&startedAt,
		&finishedAt,
		&run.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := scanJSON(inputData, &run.InputData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
	}

	if len(runErr) > 0 {
		run.Error = &models.NodeError{}
		if err := scanJSON(runErr, run.Error); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run error: %w", err)
		}
	}

	if startedAt.Valid {
		t := startedAt.Time.UTC()
		run.StartedAt = &t
	}

	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		run.FinishedAt = &t
	}

	run.CreatedAt = run.CreatedAt.UTC()
	run.NodeLogs = []models.NodeExecutionRecord{}

	return &run, nil
}

func loadNodeLogs(ctx context.Context, q queryer, run *models.ExecutionRun) error {
	rows, err := q.QueryContext(ctx, `
		SELECT node_id, node_type, status, attempts, started_at, finished_at, duration_ms, output, error
		FROM execution_node_logs
		WHERE execution_id = $1
		ORDER BY seq
	`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to query node logs: %w", err)
	}
	defer rows.Close()

	run.NodeLogs = make([]models.NodeExecutionRecord, 0)

	for rows.Next() {
		var (
			record     models.NodeExecutionRecord
			startedAt  sql.NullTime
			finishedAt sql.NullTime
			output     []byte
			nodeErr    []byte
		)

		err := rows.Scan(&record.NodeID, &record.NodeType, &record.Status, &record.Attempts,
			&startedAt, &finishedAt, &record.DurationMs, &output, &nodeErr)
		if err != nil {
			return fmt.Errorf("failed to scan node log: %w", err)
		}

		record.StartedAt = startedAt.Time.UTC()
		record.FinishedAt = finishedAt.Time.UTC()

		if err := scanJSON(output, &record.Output); err != nil {
			return fmt.Errorf("failed to unmarshal node output: %w", err)
		}

		if len(nodeErr) > 0 {
			record.Error = &models.NodeError{}
			if err := scanJSON(nodeErr, record.Error); err != nil {
				return fmt.Errorf("failed to unmarshal node error: %w", err)
			}
		}

		run.NodeLogs = append(run.NodeLogs, record)
	}

	return rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
