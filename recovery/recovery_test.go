package recovery

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sammayank765/task-scheduler/store"
	"github.com/sammayank765/task-scheduler/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "tasks.db")
	db, err := sqlite.NewDB(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return store.New(db)
}

func TestRunRequeuesRunningTasks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, &store.Task{ID: "a", Type: "t", Status: store.TaskStatusQueued, Dependencies: []string{}}))
	started := int64(1000)
	claimed, err := st.UpdateStatus(ctx, "a", store.TaskStatusRunning, 0, store.PartialUpdate{StartedAt: &started})
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, st.Insert(ctx, &store.Task{ID: "b", Type: "t", Status: store.TaskStatusQueued, Dependencies: []string{}}))

	n, err := Run(ctx, st, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := st.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusQueued, got.Status)
	require.Nil(t, got.StartedAt)
	require.NotNil(t, got.Error)
	require.Equal(t, InterruptedMessage, *got.Error)

	untouched, err := st.Get(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, store.TaskStatusQueued, untouched.Status)
	require.Nil(t, untouched.Error)
}

func TestRunNoOpWhenNothingRunning(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Insert(ctx, &store.Task{ID: "a", Type: "t", Status: store.TaskStatusQueued, Dependencies: []string{}}))

	n, err := Run(ctx, st, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRunIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Insert(ctx, &store.Task{ID: "a", Type: "t", Status: store.TaskStatusQueued, Dependencies: []string{}}))
	started := int64(1000)
	_, err := st.UpdateStatus(ctx, "a", store.TaskStatusRunning, 0, store.PartialUpdate{StartedAt: &started})
	require.NoError(t, err)

	n1, err := Run(ctx, st, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n1)

	n2, err := Run(ctx, st, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n2)
}
