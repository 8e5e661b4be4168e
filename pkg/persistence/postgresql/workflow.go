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

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const selectWorkflow = `
	SELECT
		id
	  , name
	  , description
	  , variables
	  , metadata
	  , owner
	  , created_at
	  , updated_at
	FROM workflows
`

// GetAll returns all workflows from the database.
func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, selectWorkflow+` WHERE deleted_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, selectWorkflow+` WHERE id = $1 AND deleted_at IS NULL`, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadGraph(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Save upserts the workflow row and replaces its nodes and connections in one transaction.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	variables, err := jsonValue(workflow.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	metadata, err := jsonValue(workflow.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, variables, metadata, owner, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , variables = EXCLUDED.variables
		  , metadata = EXCLUDED.metadata
		  , owner = EXCLUDED.owner
		  , updated_at = EXCLUDED.updated_at
		  , deleted_at = NULL
	`, workflow.ID, workflow.Name, workflow.Description, variables, metadata, workflow.Owner, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	for _, table := range []string{"workflow_nodes", "workflow_connections"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE workflow_id = $1", workflow.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i, node := range workflow.Nodes {
		config, err := jsonValue(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config of node %s: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, position, node_type, name, config)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, workflow.ID, node.ID, i, node.Type, node.Name, config)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	for i, conn := range workflow.Connections {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_connections (workflow_id, position, id, from_node, to_node, condition)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, workflow.ID, i, conn.ID, conn.From, conn.To, conn.Condition)
		if err != nil {
			return fmt.Errorf("failed to save connection %s->%s: %w", conn.From, conn.To, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workflow: %w", err)
	}

	return nil
}

// Delete soft-deletes a workflow. Execution runs are kept.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflows SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow  models.Workflow
		variables []byte
		metadata  []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&variables,
		&metadata,
		&workflow.Owner,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := scanJSON(variables, &workflow.Variables); err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if err := scanJSON(metadata, &workflow.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	nodeRows, err := r.db.QueryContext(ctx, `
		SELECT id, node_type, name, config FROM workflow_nodes WHERE workflow_id = $1 ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query nodes: %w", err)
	}
	defer nodeRows.Close()

	workflow.Nodes = make([]*models.WorkflowNode, 0)

	for nodeRows.Next() {
		var (
			node   models.WorkflowNode
			config []byte
		)

		if err := nodeRows.Scan(&node.ID, &node.Type, &node.Name, &config); err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		if err := scanJSON(config, &node.Config); err != nil {
			return fmt.Errorf("failed to unmarshal config of node %s: %w", node.ID, err)
		}

		workflow.Nodes = append(workflow.Nodes, &node)
	}

	if err := nodeRows.Err(); err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	connRows, err := r.db.QueryContext(ctx, `
		SELECT id, from_node, to_node, condition FROM workflow_connections WHERE workflow_id = $1 ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query connections: %w", err)
	}
	defer connRows.Close()

	workflow.Connections = make([]*models.Connection, 0)

	for connRows.Next() {
		var conn models.Connection
		if err := connRows.Scan(&conn.ID, &conn.From, &conn.To, &conn.Condition); err != nil {
			return fmt.Errorf("failed to scan connection: %w", err)
		}

		workflow.Connections = append(workflow.Connections, &conn)
	}

	return connRows.Err()
}
