package persistence

import (
	"fmt"
	"strings"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
)

// ApplyStatus mutates run according to update, enforcing the run state machine. Every store
// calls it while holding its per-run lock.
func ApplyStatus(run *models.ExecutionRun, update StatusUpdate) error {
	if !update.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, update.Status)
	}

	if !run.Status.CanTransitionTo(update.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.Status, update.Status)
	}

	at := update.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if update.Status == models.ExecutionStatusRunning {
		run.StartedAt = &at
	}

	if update.Status.IsTerminal() {
		run.FinishedAt = &at
		if update.Error != nil {
			run.Error = update.Error
		}
	}

	run.Status = update.Status
	run.Version++

	return nil
}

// ApplyNodeLog appends record to run unless the run is terminal or the node is already logged.
func ApplyNodeLog(run *models.ExecutionRun, record models.NodeExecutionRecord) error {
	if run.Status.IsTerminal() {
		return ErrRunAlreadyTerminal
	}

	if run.HasNodeLog(record.NodeID) {
		return fmt.Errorf("%w: %s", ErrNodeAlreadyLogged, record.NodeID)
	}

	run.NodeLogs = append(run.NodeLogs, record)
	run.Version++

	return nil
}

// Reusable reports whether an existing run should be returned instead of starting a new one
// for the same idempotency key. Failed runs may be retried under the same key.
func Reusable(existing *models.ExecutionRun) bool {
	return existing != nil && existing.Status != models.ExecutionStatusFailed
}

// IdempotencyScope builds the lookup key for a run's idempotency key, or "" when it has none.
func IdempotencyScope(run *models.ExecutionRun) string {
	if run.IdempotencyKey == "" {
		return ""
	}

	return strings.Join([]string{run.WorkflowID, run.Owner, run.IdempotencyKey}, "\x00")
}

// PrepareNewRun fills defaults on a run about to be stored.
func PrepareNewRun(run *models.ExecutionRun) {
	if run.Status == "" {
		run.Status = models.ExecutionStatusQueued
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	if run.NodeLogs == nil {
		run.NodeLogs = []models.NodeExecutionRecord{}
	}

	if run.Version == 0 {
		run.Version = 1
	}
}
