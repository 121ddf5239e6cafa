// Package store provides durable, crash-safe persistence for tasks with
// versioned (optimistic-concurrency) status updates and indexed queries.
package store

import "context"

// Store is the durable task repository. It delegates all persistence to a
// Driver and adds nothing of its own beyond the seam that lets callers
// depend on Store rather than a concrete driver package.
type Store struct {
	driver Driver
}

// New wraps a Driver in a Store.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Migrate prepares the backing schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

// Insert persists a new task record with version 0. Returns ErrExists if
// the id is already present.
func (s *Store) Insert(ctx context.Context, task *Task) error {
	return s.driver.Insert(ctx, task)
}

// Get returns the full task record, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	return s.driver.Get(ctx, id)
}

// GetWithVersion returns the task and its current version, for use before
// an UpdateStatus call.
func (s *Store) GetWithVersion(ctx context.Context, id string) (*Task, int64, error) {
	return s.driver.GetWithVersion(ctx, id)
}

// ListAll returns every task ordered by created_at ascending.
func (s *Store) ListAll(ctx context.Context) ([]*Task, error) {
	return s.driver.ListAll(ctx)
}

// ListByStatus returns tasks in the given status, ordered by created_at
// ascending.
func (s *Store) ListByStatus(ctx context.Context, status TaskStatus) ([]*Task, error) {
	return s.driver.ListByStatus(ctx, status)
}

// UpdateStatus is the sole mutation primitive: a version-gated transition
// that also applies any partial field updates atomically with the status
// write. It never returns an error for a lost race; callers check claimed.
func (s *Store) UpdateStatus(ctx context.Context, id string, newStatus TaskStatus, expectedVersion int64, update PartialUpdate) (bool, error) {
	return s.driver.UpdateStatus(ctx, id, newStatus, expectedVersion, update)
}

// Stats returns a count of tasks by status.
func (s *Store) Stats(ctx context.Context) (StatusCounts, error) {
	return s.driver.Stats(ctx)
}

// Close releases the underlying driver's resources.
func (s *Store) Close() error {
	return s.driver.Close()
}
