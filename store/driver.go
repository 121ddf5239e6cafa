package store

import "context"

// StatusCounts maps each TaskStatus to the number of tasks currently in it.
type StatusCounts map[TaskStatus]int64

// Driver is the durable backing store a Store delegates to. The sqlite
// implementation lives in store/db/sqlite; other drivers can be added
// behind the same interface without touching callers.
type Driver interface {
	Migrate(ctx context.Context) error

	Insert(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	GetWithVersion(ctx context.Context, id string) (*Task, int64, error)
	ListAll(ctx context.Context) ([]*Task, error)
	ListByStatus(ctx context.Context, status TaskStatus) ([]*Task, error)

	// UpdateStatus applies the transition only if the stored version equals
	// expectedVersion. It reports whether the write was applied (claimed)
	// or lost the race (stale).
	UpdateStatus(ctx context.Context, id string, newStatus TaskStatus, expectedVersion int64, update PartialUpdate) (claimed bool, err error)

	Stats(ctx context.Context) (StatusCounts, error)

	Close() error
}
