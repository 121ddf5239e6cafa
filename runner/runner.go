// Package runner defines the pluggable task-execution contract and a
// reference implementation. The Scheduler only depends on the Runner
// interface; production deployments can swap in a runner that shells out,
// calls a remote worker, or whatever else "executing a task" means for them.
package runner

import (
	"context"
	"time"

	"github.com/sammayank765/task-scheduler/store"
)

// Runner executes a claimed task and reports its terminal outcome. A nil
// error means success (COMPLETED); a non-nil error's message is recorded as
// the task's error field and drives the FAILED transition.
type Runner interface {
	Run(ctx context.Context, task *store.Task) error
}

// SleepRunner is the reference runner: it sleeps for task.DurationMS and
// always succeeds, unless the context is cancelled first.
type SleepRunner struct{}

// NewSleepRunner returns the reference Runner.
func NewSleepRunner() *SleepRunner {
	return &SleepRunner{}
}

func (r *SleepRunner) Run(ctx context.Context, task *store.Task) error {
	d := time.Duration(task.DurationMS) * time.Millisecond
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
