// Package scheduler implements the polling loop that discovers ready tasks,
// bounds concurrency, and drives tasks through RUNNING to a terminal state.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sammayank765/task-scheduler/runner"
	"github.com/sammayank765/task-scheduler/store"
)

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 100 * time.Millisecond

// Recorder receives scheduling observability events. All methods must be
// safe to call from multiple goroutines. New replaces a nil Recorder with
// NoopRecorder, so callers that don't care about metrics pay nothing.
type Recorder interface {
	ObserveTick()
	SetRunning(count int)
	SetSlotsAvailable(count int)
	ObserveTaskDuration(seconds float64)
	RefreshTaskCounts(counts store.StatusCounts)
}

// NoopRecorder implements Recorder with no-ops.
type NoopRecorder struct{}

func (NoopRecorder) ObserveTick()                          {}
func (NoopRecorder) SetRunning(int)                        {}
func (NoopRecorder) SetSlotsAvailable(int)                 {}
func (NoopRecorder) ObserveTaskDuration(float64)            {}
func (NoopRecorder) RefreshTaskCounts(store.StatusCounts)   {}

// Config configures a Scheduler.
type Config struct {
	MaxConcurrent int
	PollInterval  time.Duration
}

// Scheduler is the long-running polling loop: every poll interval it
// computes free slots, fetches ready tasks, sorts them FIFO, and attempts
// to claim up to the free-slot count.
type Scheduler struct {
	store   *store.Store
	runner  runner.Runner
	cfg     Config
	metrics Recorder
	logger  *slog.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{}

	wake chan struct{}
	stop chan struct{}

	runnersWG sync.WaitGroup

	now func() int64 // injectable clock, unix milliseconds
}

// New builds a Scheduler. If cfg.PollInterval is zero, DefaultPollInterval
// is used.
func New(st *store.Store, r runner.Runner, cfg Config, metrics Recorder, logger *slog.Logger) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if metrics == nil {
		metrics = NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    st,
		runner:   r,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		inFlight: make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		now:      nowMillis,
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Run blocks, ticking every PollInterval, until ctx is cancelled or Stop is
// called. It does not return an error on a cooperative stop.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.metrics.ObserveTick()
			if err := s.tick(ctx); err != nil {
				s.logger.Error("scheduler: fatal store error, stopping", "error", err)
				return err
			}
		case <-s.wake:
			s.metrics.ObserveTick()
			if err := s.tick(ctx); err != nil {
				s.logger.Error("scheduler: fatal store error, stopping", "error", err)
				return err
			}
		}
	}
}

// Stop halts further scheduling ticks. In-flight runners are not cancelled;
// they run to their natural terminal write. Callers that need a bounded
// shutdown should wait on Wait(ctx) afterward.
func (s *Scheduler) Stop() {
	select {
	case <-s.stop:
		// already stopped
	default:
		close(s.stop)
	}
}

// Wait blocks until all in-flight runners have completed their terminal
// write, or ctx is done first.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.runnersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlightIDs returns a snapshot of the ids currently in flight, for the
// stats endpoint.
func (s *Scheduler) InFlightIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.inFlight))
	for id := range s.inFlight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SlotsAvailable returns max_concurrent - |in_flight| at this instant.
func (s *Scheduler) SlotsAvailable() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	free := s.cfg.MaxConcurrent - len(s.inFlight)
	if free < 0 {
		free = 0
	}
	return free
}

func (s *Scheduler) inFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

func (s *Scheduler) addInFlight(id string) {
	s.mu.Lock()
	s.inFlight[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) removeInFlight(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// tick is one scheduling pass: compute free slots, fetch ready tasks, sort
// FIFO, claim up to free of them, and hand each claimed task to the runner.
func (s *Scheduler) tick(ctx context.Context) error {
	free := s.cfg.MaxConcurrent - s.inFlightCount()
	s.metrics.SetRunning(s.inFlightCount())
	s.metrics.SetSlotsAvailable(free)

	if counts, err := s.store.Stats(ctx); err != nil {
		s.logger.Error("scheduler: failed to refresh task counts", "error", err)
	} else {
		s.metrics.RefreshTaskCounts(counts)
	}

	if free <= 0 {
		return nil
	}

	ready, err := s.fetchReady(ctx)
	if err != nil {
		return err
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].CreatedAt != ready[j].CreatedAt {
			return ready[i].CreatedAt < ready[j].CreatedAt
		}
		return ready[i].ID < ready[j].ID
	})

	if len(ready) > free {
		ready = ready[:free]
	}

	for _, candidate := range ready {
		s.claimAndRun(ctx, candidate.ID)
	}
	return nil
}

// fetchReady returns every WAITING or QUEUED task whose dependencies are
// all COMPLETED. This loads the full task set once per tick and filters in
// memory; an indexed-query variant can replace this without changing
// readiness semantics.
func (s *Scheduler) fetchReady(ctx context.Context) ([]*store.Task, error) {
	all, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*store.Task, len(all))
	for _, t := range all {
		byID[t.ID] = t
	}

	var ready []*store.Task
	for _, t := range all {
		if t.Status != store.TaskStatusWaiting && t.Status != store.TaskStatusQueued {
			continue
		}
		if allDepsCompleted(t, byID) {
			ready = append(ready, t)
		}
	}
	return ready, nil
}

func allDepsCompleted(t *store.Task, byID map[string]*store.Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := byID[dep]
		if !ok || d.Status != store.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// claimAndRun attempts to claim id into RUNNING and, on success, dispatches
// the runner in a new goroutine. A stale claim (another tick or a racing
// submission already advanced the task) is skipped silently.
func (s *Scheduler) claimAndRun(ctx context.Context, id string) {
	task, version, err := s.store.GetWithVersion(ctx, id)
	if err != nil {
		s.logger.Warn("scheduler: failed to re-read candidate before claim", "task_id", id, "error", err)
		return
	}
	if task.Status.IsTerminal() || task.Status == store.TaskStatusRunning {
		return // already advanced by a racing actor
	}

	if !s.sem.TryAcquire(1) {
		return // concurrency bound reached between free-slot computation and here
	}

	startedAt := s.now()
	claimed, err := s.store.UpdateStatus(ctx, id, store.TaskStatusRunning, version, store.PartialUpdate{StartedAt: &startedAt})
	if err != nil {
		s.sem.Release(1)
		s.logger.Error("scheduler: claim write failed", "task_id", id, "error", err)
		return
	}
	if !claimed {
		s.sem.Release(1)
		return
	}

	s.addInFlight(id)
	task.Status = store.TaskStatusRunning
	task.StartedAt = &startedAt
	task.Version = version + 1

	s.runnersWG.Add(1)
	go s.execute(ctx, task, startedAt)
}

// execute runs the claimed task and performs the terminal write. The
// version used for the terminal write is re-fetched rather than assumed to
// be claim_version+1, so a concurrent mutation between claim and
// completion can't silently be overwritten.
func (s *Scheduler) execute(ctx context.Context, task *store.Task, startedAt int64) {
	defer s.runnersWG.Done()
	defer s.requestTick()
	defer s.sem.Release(1)
	defer s.removeInFlight(task.ID)

	runErr := s.runner.Run(ctx, task)

	completedAt := s.now()
	s.metrics.ObserveTaskDuration(float64(completedAt-startedAt) / 1000)

	_, version, err := s.store.GetWithVersion(ctx, task.ID)
	if err != nil {
		s.logger.Error("scheduler: failed to re-read task before terminal write", "task_id", task.ID, "error", err)
		return
	}

	update := store.PartialUpdate{CompletedAt: &completedAt}
	newStatus := store.TaskStatusCompleted
	if runErr != nil {
		newStatus = store.TaskStatusFailed
		msg := runErr.Error()
		update.Error = &msg
	}

	claimed, err := s.store.UpdateStatus(ctx, task.ID, newStatus, version, update)
	if err != nil {
		s.logger.Error("scheduler: terminal write failed", "task_id", task.ID, "error", err)
		return
	}
	if !claimed {
		s.logger.Warn("scheduler: terminal write lost the version race", "task_id", task.ID)
	}
}

// requestTick asks for one extra scheduling pass without waiting for the
// next tick, per the Runner-handoff contract.
func (s *Scheduler) requestTick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
