// Package validator gatekeeps task submissions: it validates a candidate
// input against a store snapshot and, on success, materializes the initial
// Task record. It is pure with respect to the snapshot it is given.
package validator

import (
	"context"
	"fmt"

	"github.com/sammayank765/task-scheduler/store"
)

// Input is the raw, client-submitted task request before materialization.
type Input struct {
	ID           string
	Type         string
	DurationMS   int64
	Dependencies []string
}

// ValidationError describes why a submission was rejected. It is a normal
// return value, not a panic, so callers handle rejection as routine
// control flow.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func rejected(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// snapshotSource is the read-only slice of Store the validator needs. Taking
// an interface instead of *store.Store keeps the package pure/testable
// without spinning up a real database in unit tests.
type snapshotSource interface {
	Get(ctx context.Context, id string) (*store.Task, error)
	ListAll(ctx context.Context) ([]*store.Task, error)
}

// Validate runs the ordered checks from the submission contract. The first
// failure wins; later checks are skipped. snap should be the same source the
// caller passes to Materialize.
func Validate(ctx context.Context, in Input, snap snapshotSource) *ValidationError {
	if in.ID == "" {
		return rejected("id is required and must be a non-empty string")
	}
	if in.Type == "" {
		return rejected("type is required and must be a non-empty string")
	}
	if in.DurationMS < 0 {
		return rejected("duration_ms must be a non-negative integer")
	}

	if _, err := snap.Get(ctx, in.ID); err == nil {
		return rejected("task %q already exists", in.ID)
	} else if err != store.ErrNotFound {
		return rejected("failed to check existing task %q: %v", in.ID, err)
	}

	for _, dep := range in.Dependencies {
		if dep == "" {
			return rejected("dependencies must be non-empty strings")
		}
	}

	for _, dep := range in.Dependencies {
		if dep == in.ID {
			return rejected("task %q cannot depend on itself", in.ID)
		}
	}

	all, err := snap.ListAll(ctx)
	if err != nil {
		return rejected("failed to load store snapshot: %v", err)
	}
	existing := make(map[string]*store.Task, len(all))
	for _, t := range all {
		existing[t.ID] = t
	}

	for _, dep := range in.Dependencies {
		if _, ok := existing[dep]; !ok {
			return rejected("dependency %q does not exist", dep)
		}
	}

	if cyclePath := detectCycle(in.ID, in.Dependencies, existing); cyclePath {
		return rejected("adding task %q would create a cyclic dependency", in.ID)
	}

	return nil
}

// detectCycle reports whether adding edges {id -> d | d in deps} to the
// existing graph (task -> its dependencies) creates a cycle. It performs a
// DFS from each dependency searching for id as a reachable target: if id is
// reachable from one of its own soon-to-be dependencies, the new edge set
// closes a loop. Terminates early on the first hit. O(V+E).
func detectCycle(id string, deps []string, existing map[string]*store.Task) bool {
	visited := make(map[string]bool)

	var reaches func(node string) bool
	reaches = func(node string) bool {
		if node == id {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true

		task, ok := existing[node]
		if !ok {
			return false
		}
		for _, dep := range task.Dependencies {
			if reaches(dep) {
				return true
			}
		}
		return false
	}

	for _, dep := range deps {
		if reaches(dep) {
			return true
		}
	}
	return false
}

// InitialStatus classifies a freshly validated submission per the snapshot
// used during validation: QUEUED if there are no dependencies or all are
// already COMPLETED, WAITING otherwise. A later background change to a
// dependency's status is handled by the Scheduler's readiness check, not by
// re-classification here.
func InitialStatus(deps []string, existing map[string]*store.Task) store.TaskStatus {
	for _, dep := range deps {
		t, ok := existing[dep]
		if !ok || t.Status != store.TaskStatusCompleted {
			return store.TaskStatusWaiting
		}
	}
	return store.TaskStatusQueued
}

// Materialize builds the Task record to insert. It reads snap's task list
// again rather than reusing the read Validate made, so the initial status
// reflects dependency statuses as of this second read, not as Validate saw
// them. now is the caller-supplied creation timestamp (unix
// milliseconds), injected rather than read from time.Now so callers control
// FIFO ordering deterministically in tests.
func Materialize(ctx context.Context, in Input, snap snapshotSource, now int64) (*store.Task, error) {
	all, err := snap.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]*store.Task, len(all))
	for _, t := range all {
		existing[t.ID] = t
	}

	deps := in.Dependencies
	if deps == nil {
		deps = []string{}
	}

	return &store.Task{
		ID:           in.ID,
		Type:         in.Type,
		DurationMS:   in.DurationMS,
		Dependencies: deps,
		Status:       InitialStatus(deps, existing),
		CreatedAt:    now,
		RetryCount:   0,
	}, nil
}
