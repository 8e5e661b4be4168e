package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

// WorkflowRepository keeps each workflow under <prefix>workflow:<id> and the set of ids
// under <prefix>workflows.
type WorkflowRepository struct {
	client goredis.UniversalClient
	prefix string
}

func NewWorkflowRepository(client goredis.UniversalClient, prefix string) *WorkflowRepository {
	return &WorkflowRepository{client: client, prefix: prefix}
}

func (wr *WorkflowRepository) key(id string) string {
	return wr.prefix + "workflow:" + id
}

func (wr *WorkflowRepository) indexKey() string {
	return wr.prefix + "workflows"
}

func (wr *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	ids, err := wr.client.SMembers(ctx, wr.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(ids))
	if len(ids) == 0 {
		return workflows, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = wr.key(id)
	}

	values, err := wr.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflows: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}

		var workflow models.Workflow
		if err := json.Unmarshal([]byte(raw), &workflow); err != nil {
			return nil, fmt.Errorf("failed to decode workflow %s: %w", ids[i], err)
		}

		workflows = append(workflows, &workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	if err := getJSON(ctx, wr.client, wr.key(id), &workflow); err != nil {
		if isMissing(err) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", id, err)
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		return fmt.Errorf("workflow id is required")
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	data, err := json.Marshal(workflow)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	_, err = wr.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, wr.key(workflow.ID), data, 0)
		pipe.SAdd(ctx, wr.indexKey(), workflow.ID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	var deleted *goredis.IntCmd

	_, err := wr.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		deleted = pipe.Del(ctx, wr.key(id))
		pipe.SRem(ctx, wr.indexKey(), id)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", id, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}
