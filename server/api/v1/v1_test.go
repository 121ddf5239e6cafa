package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/sammayank765/task-scheduler/store"
	"github.com/sammayank765/task-scheduler/store/db/sqlite"
)

type fakeReporter struct {
	ids   []string
	slots int
}

func (f *fakeReporter) InFlightIDs() []string { return f.ids }
func (f *fakeReporter) SlotsAvailable() int   { return f.slots }

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "tasks.db")
	db, err := sqlite.NewDB(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return NewService(store.New(db), &fakeReporter{slots: 5}, 5)
}

func newEchoCtx(method, path, body string, rec *httptest.ResponseRecorder) (echo.Context, *echo.Echo) {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return e.NewContext(req, rec), e
}

func TestCreateTaskSuccess(t *testing.T) {
	svc := newTestService(t)
	rec := httptest.NewRecorder()
	c, _ := newEchoCtx(http.MethodPost, "/api/tasks", `{"id":"a","type":"demo","duration_ms":100}`, rec)

	require.NoError(t, svc.CreateTask(c))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"a"`)
}

func TestCreateTaskInvalidBody(t *testing.T) {
	svc := newTestService(t)
	rec := httptest.NewRecorder()
	c, _ := newEchoCtx(http.MethodPost, "/api/tasks", `not json`, rec)

	require.NoError(t, svc.CreateTask(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskValidationError(t *testing.T) {
	svc := newTestService(t)
	rec := httptest.NewRecorder()
	c, _ := newEchoCtx(http.MethodPost, "/api/tasks", `{"id":"","type":"demo"}`, rec)

	require.NoError(t, svc.CreateTask(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTaskDuplicateReturnsConflict(t *testing.T) {
	svc := newTestService(t)

	rec1 := httptest.NewRecorder()
	c1, _ := newEchoCtx(http.MethodPost, "/api/tasks", `{"id":"dup","type":"demo"}`, rec1)
	require.NoError(t, svc.CreateTask(c1))
	require.Equal(t, http.StatusCreated, rec1.Code)

	rec2 := httptest.NewRecorder()
	c2, _ := newEchoCtx(http.MethodPost, "/api/tasks", `{"id":"dup","type":"demo"}`, rec2)
	require.NoError(t, svc.CreateTask(c2))
	require.Equal(t, http.StatusConflict, rec2.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	svc := newTestService(t)
	rec := httptest.NewRecorder()
	c, _ := newEchoCtx(http.MethodGet, "/api/tasks/missing", "", rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	require.NoError(t, svc.GetTask(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTaskFound(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Store.Insert(context.Background(), &store.Task{
		ID: "a", Type: "demo", Status: store.TaskStatusQueued, Dependencies: []string{},
	}))

	rec := httptest.NewRecorder()
	c, _ := newEchoCtx(http.MethodGet, "/api/tasks/a", "", rec)
	c.SetParamNames("id")
	c.SetParamValues("a")

	require.NoError(t, svc.GetTask(c))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListTasksInvalidStatus(t *testing.T) {
	svc := newTestService(t)
	rec := httptest.NewRecorder()
	c, _ := newEchoCtx(http.MethodGet, "/api/tasks?status=BOGUS", "", rec)

	require.NoError(t, svc.ListTasks(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksAll(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Store.Insert(context.Background(), &store.Task{
		ID: "a", Type: "demo", Status: store.TaskStatusQueued, Dependencies: []string{},
	}))

	rec := httptest.NewRecorder()
	c, _ := newEchoCtx(http.MethodGet, "/api/tasks", "", rec)

	require.NoError(t, svc.ListTasks(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":1`)
}

func TestStatsReportsSchedulerState(t *testing.T) {
	svc := newTestService(t)
	svc.Scheduler = &fakeReporter{ids: []string{"x", "y"}, slots: 3}

	rec := httptest.NewRecorder()
	c, _ := newEchoCtx(http.MethodGet, "/api/stats", "", rec)

	require.NoError(t, svc.Stats(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"slots_available":3`)
}

func TestHealth(t *testing.T) {
	svc := newTestService(t)
	rec := httptest.NewRecorder()
	c, _ := newEchoCtx(http.MethodGet, "/api/health", "", rec)

	require.NoError(t, svc.Health(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}
