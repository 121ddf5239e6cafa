// Package sqlite implements store.Driver on top of a single SQLite file,
// using WAL mode and a single-connection pool suited to a local-file
// embedded, single-writer workload.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	// Pure-Go SQLite driver; no cgo required.
	_ "modernc.org/sqlite"

	"github.com/sammayank765/task-scheduler/store"
)

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL,
	dependencies  TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	started_at    INTEGER,
	completed_at  INTEGER,
	error         TEXT,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	version       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`

// DB is the sqlite-backed store.Driver.
type DB struct {
	db *sql.DB
}

// NewDB opens (creating if absent) the sqlite file at dsn with the pragmas
// this embedded, single-writer workload needs: WAL journaling so readers
// never block the scheduler's writes, a busy timeout so a momentary lock
// contention backs off instead of failing, and a single pooled connection
// since SQLite has no use for a pool once WAL is enabled locally.
func NewDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return nil, errors.Wrapf(err, "failed to set pragma: %s", pragma)
		}
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	return &DB{db: sqlDB}, nil
}

func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate schema")
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func encodeDeps(deps []string) (string, error) {
	if deps == nil {
		deps = []string{}
	}
	b, err := json.Marshal(deps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeDeps(raw string) ([]string, error) {
	var deps []string
	if raw == "" {
		return []string{}, nil
	}
	if err := json.Unmarshal([]byte(raw), &deps); err != nil {
		return nil, err
	}
	return deps, nil
}

func (d *DB) Insert(ctx context.Context, task *store.Task) error {
	depsJSON, err := encodeDeps(task.Dependencies)
	if err != nil {
		return errors.Wrap(err, "failed to encode dependencies")
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO tasks (id, type, duration_ms, dependencies, status, created_at, started_at, completed_at, error, retry_count, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, task.ID, task.Type, task.DurationMS, depsJSON, string(task.Status), task.CreatedAt, task.StartedAt, task.CompletedAt, task.Error, task.RetryCount)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return store.ErrExists
		}
		return errors.Wrapf(err, "failed to insert task %s", task.ID)
	}
	task.Version = 0
	return nil
}

// isUniqueConstraintErr detects SQLite's primary-key collision message
// without depending on driver-specific error types, since modernc.org/sqlite
// and mattn/go-sqlite3 expose this differently.
func isUniqueConstraintErr(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}

func scanTask(row interface {
	Scan(dest ...any) error
}) (*store.Task, error) {
	var (
		t        store.Task
		depsJSON string
		status   string
	)
	if err := row.Scan(&t.ID, &t.Type, &t.DurationMS, &depsJSON, &status, &t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.Error, &t.RetryCount, &t.Version); err != nil {
		return nil, err
	}
	t.Status = store.TaskStatus(status)
	deps, err := decodeDeps(depsJSON)
	if err != nil {
		return nil, err
	}
	t.Dependencies = deps
	return &t, nil
}

const selectCols = `id, type, duration_ms, dependencies, status, created_at, started_at, completed_at, error, retry_count, version`

func (d *DB) Get(ctx context.Context, id string) (*store.Task, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectCols+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to get task %s", id)
	}
	return task, nil
}

func (d *DB) GetWithVersion(ctx context.Context, id string) (*store.Task, int64, error) {
	task, err := d.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return task, task.Version, nil
}

func (d *DB) queryTasks(ctx context.Context, query string, args ...any) ([]*store.Task, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tasks")
	}
	defer rows.Close()

	var tasks []*store.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan task")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate tasks")
	}
	return tasks, nil
}

func (d *DB) ListAll(ctx context.Context) ([]*store.Task, error) {
	return d.queryTasks(ctx, `SELECT `+selectCols+` FROM tasks ORDER BY created_at ASC, id ASC`)
}

func (d *DB) ListByStatus(ctx context.Context, status store.TaskStatus) ([]*store.Task, error) {
	return d.queryTasks(ctx, `SELECT `+selectCols+` FROM tasks WHERE status = ? ORDER BY created_at ASC, id ASC`, string(status))
}

// UpdateStatus applies a version-gated transition. The UPDATE statement's
// WHERE clause is the concurrency primitive: exactly one of two racing
// callers for the same id sees RowsAffected() == 1.
func (d *DB) UpdateStatus(ctx context.Context, id string, newStatus store.TaskStatus, expectedVersion int64, update store.PartialUpdate) (bool, error) {
	setClauses := []string{"status = ?", "version = version + 1"}
	args := []any{string(newStatus)}

	if update.ClearStart {
		setClauses = append(setClauses, "started_at = NULL")
	} else if update.StartedAt != nil {
		setClauses = append(setClauses, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.CompletedAt != nil {
		setClauses = append(setClauses, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if update.Error != nil {
		setClauses = append(setClauses, "error = ?")
		args = append(args, *update.Error)
	}
	if update.RetryCount != nil {
		setClauses = append(setClauses, "retry_count = ?")
		args = append(args, *update.RetryCount)
	}

	query := "UPDATE tasks SET " + strings.Join(setClauses, ", ") + " WHERE id = ? AND version = ?"
	args = append(args, id, expectedVersion)

	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrapf(err, "failed to update task %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return false, nil
	}
	return true, nil
}

func (d *DB) Stats(ctx context.Context) (store.StatusCounts, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query stats")
	}
	defer rows.Close()

	counts := store.StatusCounts{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan stats row")
		}
		counts[store.TaskStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate stats")
	}
	return counts, nil
}

// IsInitialized reports whether the tasks table has already been created.
func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type='table' AND name='tasks')`).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check if database is initialized")
	}
	return exists, nil
}
