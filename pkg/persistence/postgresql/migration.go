package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				variables JSONB,
				metadata JSONB,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB DEFAULT '{}',
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_connections (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				position INT NOT NULL,
				id VARCHAR(255) NOT NULL DEFAULT '',
				from_node VARCHAR(255) NOT NULL,
				to_node VARCHAR(255) NOT NULL,
				condition TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (workflow_id, position)
			);
		`,
		2: `
			CREATE TABLE execution_runs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				idempotency_key VARCHAR(255),
				owner VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL CHECK (status IN ('queued', 'running', 'succeeded', 'failed', 'partially_failed')),
				input_data JSONB,
				error JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				version BIGINT NOT NULL DEFAULT 1,
				superseded BOOLEAN NOT NULL DEFAULT false
			);

			-- At most one live run per idempotency key; failed runs are superseded on retry.
			CREATE UNIQUE INDEX idx_execution_runs_idempotency
				ON execution_runs(workflow_id, owner, idempotency_key)
				WHERE idempotency_key IS NOT NULL AND superseded = false;

			CREATE INDEX idx_execution_runs_workflow ON execution_runs(workflow_id, created_at DESC);

			CREATE TABLE execution_node_logs (
				execution_id VARCHAR(255) NOT NULL REFERENCES execution_runs(id) ON DELETE CASCADE,
				seq INT NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(32) NOT NULL,
				attempts INT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				output JSONB,
				error JSONB,
				PRIMARY KEY (execution_id, seq),
				UNIQUE (execution_id, node_id)
			);
		`,
	}
}
