// Package scheduler submits executions for trigger nodes that carry a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/nodes/trigger"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/services"
	"github.com/robfig/cron/v3"
)

// DefaultSyncInterval is how often schedules are reloaded from the workflow store.
const DefaultSyncInterval = time.Minute

// Executor submits executions. *services.Execution implements it.
type Executor interface {
	Execute(ctx context.Context, req services.ExecuteRequest) (*services.ExecuteResponse, error)
}

type entry struct {
	spec string
	id   cron.EntryID
}

type Scheduler struct {
	workflows    persistence.WorkflowRepository
	executor     Executor
	logger       *slog.Logger
	syncInterval time.Duration
	now          func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]entry

	stop chan struct{}
	done chan struct{}
}

func New(workflows persistence.WorkflowRepository, executor Executor, logger *slog.Logger, syncInterval time.Duration) *Scheduler {
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}

	logger = logger.With("module", "scheduler")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))

	return &Scheduler{
		workflows:    workflows,
		executor:     executor,
		logger:       logger,
		syncInterval: syncInterval,
		now:          func() time.Time { return time.Now().UTC() },
		cron:         cron.New(cron.WithChain(cron.Recover(cronLogger)), cron.WithLocation(time.UTC)),
		entries:      make(map[string]entry),
	}
}

func entryKey(workflowID, nodeID string) string {
	return workflowID + "/" + nodeID
}

// IdempotencyKey identifies the execution of one schedule tick, so several scheduler
// instances firing the same tick share a single run.
func IdempotencyKey(nodeID string, tick time.Time) string {
	return "schedule:" + nodeID + ":" + strconv.FormatInt(tick.Unix(), 10)
}

// Sync reconciles cron entries with the schedules stored on trigger nodes.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.workflows.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)

	for _, workflow := range workflows {
		for _, node := range workflow.Nodes {
			if !node.IsTriggerNode() {
				continue
			}

			raw, ok := nodes.String(node.Config, "schedule")
			if !ok || raw == "" {
				continue
			}

			key := entryKey(workflow.ID, node.ID)

			spec := raw
			if tz, ok := nodes.String(node.Config, "timezone"); ok && tz != "" {
				spec = "CRON_TZ=" + tz + " " + raw
			}

			seen[key] = true

			if existing, ok := s.entries[key]; ok {
				if existing.spec == spec {
					continue
				}

				s.cron.Remove(existing.id)
				delete(s.entries, key)
			}

			schedule, err := trigger.ParseSchedule(raw, node.Config)
			if err != nil {
				s.logger.WarnContext(ctx, "Ignoring invalid schedule",
					"workflow_id", workflow.ID, "node_id", node.ID, "schedule", spec, "error", err)

				continue
			}

			workflowID, nodeID := workflow.ID, node.ID
			id := s.cron.Schedule(schedule, cron.FuncJob(func() {
				s.Fire(context.Background(), workflowID, nodeID, raw, s.now().Truncate(time.Minute))
			}))

			s.entries[key] = entry{spec: spec, id: id}
			s.logger.InfoContext(ctx, "Scheduled trigger", "workflow_id", workflow.ID, "node_id", node.ID, "schedule", spec)
		}
	}

	for key, existing := range s.entries {
		if !seen[key] {
			s.cron.Remove(existing.id)
			delete(s.entries, key)
			s.logger.InfoContext(ctx, "Removed schedule", "entry", key)
		}
	}

	return nil
}

// Fire submits the execution for one tick of a scheduled trigger.
func (s *Scheduler) Fire(ctx context.Context, workflowID, nodeID, spec string, tick time.Time) {
	logger := s.logger.With("workflow_id", workflowID, "node_id", nodeID)

	response, err := s.executor.Execute(ctx, services.ExecuteRequest{
		WorkflowID: workflowID,
		InputData: map[string]any{
			"scheduled_at": tick.Format(time.RFC3339),
			"schedule":     spec,
			"trigger_node": nodeID,
		},
		IdempotencyKey: IdempotencyKey(nodeID, tick),
	})
	if err != nil {
		logger.ErrorContext(ctx, "Scheduled execution failed", "error", err)

		return
	}

	if response.Created {
		logger.InfoContext(ctx, "Scheduled execution submitted", "execution_id", response.ExecutionID, "tick", tick)
	} else {
		logger.DebugContext(ctx, "Tick already submitted", "execution_id", response.ExecutionID, "tick", tick)
	}
}

// Entries returns the keys (workflow id / node id) of the active schedules.
func (s *Scheduler) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}

	return keys
}

// Start loads the schedules, starts the cron loop and keeps reloading schedules until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	s.cron.Start()

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Sync(ctx); err != nil {
					s.logger.ErrorContext(ctx, "Failed to reload schedules", "error", err)
				}
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.InfoContext(ctx, "Scheduler started", "schedules", len(s.Entries()))

	return nil
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
		s.stop = nil
	}

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Executor = (*services.Execution)(nil)
