// Package recovery implements the one-shot startup routine that reconciles
// tasks left RUNNING by a prior process that crashed or was killed before
// it could record a terminal outcome.
package recovery

import (
	"context"
	"log/slog"

	"github.com/sammayank765/task-scheduler/store"
)

// InterruptedMessage is recorded as the error field of every task requeued
// by Run.
const InterruptedMessage = "Task was interrupted by system restart"

// Run requeues every RUNNING task back to QUEUED with started_at cleared
// and error set to InterruptedMessage. It must run to completion before the
// Scheduler starts claiming tasks. A lost version race on an individual
// task (another actor already moved it) is not an error: the task is
// skipped and left as-is.
func Run(ctx context.Context, st *store.Store, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	running, err := st.ListByStatus(ctx, store.TaskStatusRunning)
	if err != nil {
		return 0, err
	}

	recovered := 0
	msg := InterruptedMessage
	for _, task := range running {
		claimed, err := st.UpdateStatus(ctx, task.ID, store.TaskStatusQueued, task.Version, store.PartialUpdate{
			ClearStart: true,
			Error:      &msg,
		})
		if err != nil {
			logger.Error("recovery: failed to requeue interrupted task", "task_id", task.ID, "error", err)
			continue
		}
		if !claimed {
			logger.Warn("recovery: skipped task that changed concurrently", "task_id", task.ID)
			continue
		}
		recovered++
		logger.Info("recovery: requeued interrupted task", "task_id", task.ID)
	}

	logger.Info("recovery: complete", "recovered", recovered, "candidates", len(running))
	return recovered, nil
}
