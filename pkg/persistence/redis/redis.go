// Package redis provides a Redis-backed persistence layer. Runs are stored as JSON documents
// and updated with WATCH/MULTI optimistic transactions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/autoflow-io/autoflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "autoflow:"
	maxTxRetries  = 32
)

// Persistence implements the persistence layer for Redis.
type Persistence struct {
	client        goredis.UniversalClient
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence connects to the redis:// URL and verifies the connection.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return NewPersistenceWithClient(client, logger), nil
}

// NewPersistenceWithClient wraps an existing client.
func NewPersistenceWithClient(client goredis.UniversalClient, logger *slog.Logger) *Persistence {
	return &Persistence{
		client:        client,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(client, defaultPrefix),
		executionRepo: NewExecutionRepository(client, logger, defaultPrefix),
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

func getJSON(ctx context.Context, cmd goredis.Cmdable, key string, dst any) error {
	raw, err := cmd.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, dst)
}

func isMissing(err error) bool {
	return errors.Is(err, goredis.Nil)
}
