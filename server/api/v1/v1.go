// Package v1 implements the JSON REST handlers exposed under /api.
package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sammayank765/task-scheduler/store"
	"github.com/sammayank765/task-scheduler/validator"
)

// InFlightReporter is the slice of Scheduler the stats handler needs. Taking
// an interface here keeps this package free of an import on scheduler,
// avoiding a dependency cycle risk and keeping handlers testable with a
// stub.
type InFlightReporter interface {
	InFlightIDs() []string
	SlotsAvailable() int
}

// Service holds the dependencies shared by every handler.
type Service struct {
	Store              *store.Store
	Scheduler          InFlightReporter
	MaxConcurrentTasks int
}

// NewService builds a Service.
func NewService(st *store.Store, sched InFlightReporter, maxConcurrentTasks int) *Service {
	return &Service{Store: st, Scheduler: sched, MaxConcurrentTasks: maxConcurrentTasks}
}

type createTaskRequest struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	DurationMS   int64    `json:"duration_ms"`
	Dependencies []string `json:"dependencies"`
}

type createTaskResponse struct {
	Message string      `json:"message"`
	Task    *store.Task `json:"task"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateTask handles POST /api/tasks.
func (s *Service) CreateTask(c echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
	}

	ctx := c.Request().Context()
	input := validator.Input{
		ID:           req.ID,
		Type:         req.Type,
		DurationMS:   req.DurationMS,
		Dependencies: req.Dependencies,
	}

	if verr := validator.Validate(ctx, input, s.Store); verr != nil {
		// The existence check runs right after the id, type and duration
		// checks; if those pass and the id is already stored, the rejection
		// is a duplicate and is reported as a conflict.
		if input.Type != "" && input.DurationMS >= 0 {
			if _, err := s.Store.Get(ctx, input.ID); err == nil {
				return c.JSON(http.StatusConflict, errorResponse{Error: "task already exists"})
			}
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
	}

	now := time.Now().UnixMilli()
	task, err := validator.Materialize(ctx, input, s.Store, now)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to prepare task: " + err.Error()})
	}

	if err := s.Store.Insert(ctx, task); err != nil {
		if errors.Is(err, store.ErrExists) {
			return c.JSON(http.StatusConflict, errorResponse{Error: "task already exists"})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to persist task: " + err.Error()})
	}

	return c.JSON(http.StatusCreated, createTaskResponse{Message: "task created", Task: task})
}

// GetTask handles GET /api/tasks/:id.
func (s *Service) GetTask(c echo.Context) error {
	id := c.Param("id")
	task, err := s.Store.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, task)
}

type listTasksResponse struct {
	Total int           `json:"total"`
	Tasks []*store.Task `json:"tasks"`
}

// ListTasks handles GET /api/tasks, optionally filtered by ?status=.
func (s *Service) ListTasks(c echo.Context) error {
	ctx := c.Request().Context()
	statusParam := c.QueryParam("status")

	var tasks []*store.Task
	var err error
	if statusParam == "" {
		tasks, err = s.Store.ListAll(ctx)
	} else {
		status := store.TaskStatus(statusParam)
		if !status.IsValid() {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "unknown status: " + statusParam})
		}
		tasks, err = s.Store.ListByStatus(ctx, status)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, listTasksResponse{Total: len(tasks), Tasks: tasks})
}

type statsResponse struct {
	Counts             store.StatusCounts `json:"counts"`
	MaxConcurrentTasks int                `json:"max_concurrent_tasks"`
	CurrentlyRunning   []string           `json:"currently_running"`
	SlotsAvailable     int                `json:"slots_available"`
}

// Stats handles GET /api/stats.
func (s *Service) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	counts, err := s.Store.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	running := []string{}
	slots := s.MaxConcurrentTasks
	if s.Scheduler != nil {
		running = s.Scheduler.InFlightIDs()
		slots = s.Scheduler.SlotsAvailable()
	}

	return c.JSON(http.StatusOK, statsResponse{
		Counts:             counts,
		MaxConcurrentTasks: s.MaxConcurrentTasks,
		CurrentlyRunning:   running,
		SlotsAvailable:     slots,
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Health handles GET /api/health.
func (s *Service) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now().Unix()})
}
