// Package metrics exports Prometheus metrics for the task scheduler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sammayank765/task-scheduler/store"
)

// Metrics is the Prometheus exporter. It implements scheduler.Recorder so a
// Scheduler can report directly into it.
type Metrics struct {
	registry *prometheus.Registry

	tasksByStatus   *prometheus.GaugeVec
	runningTasks    prometheus.Gauge
	slotsAvailable  prometheus.Gauge
	taskDuration    *prometheus.HistogramVec
	schedulerTicks  prometheus.Counter
}

// Config configures the exporter. A nil Registry creates a fresh one.
type Config struct {
	Registry       *prometheus.Registry
	DurationBuckets []float64
}

// DefaultDurationBuckets covers sub-second to multi-minute task durations.
var DefaultDurationBuckets = []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// New builds a Metrics exporter and registers all collectors.
func New(cfg Config) *Metrics {
	if len(cfg.DurationBuckets) == 0 {
		cfg.DurationBuckets = DefaultDurationBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{registry: registry}

	m.tasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "task_scheduler",
			Name:      "tasks_total",
			Help:      "Current number of tasks in each status, as of the last stats snapshot.",
		},
		[]string{"status"},
	)

	m.runningTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "task_scheduler",
			Name:      "running_tasks",
			Help:      "Number of tasks currently in flight.",
		},
	)

	m.slotsAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "task_scheduler",
			Name:      "slots_available",
			Help:      "Free concurrency slots as of the last scheduling tick.",
		},
	)

	m.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "task_scheduler",
			Name:      "task_duration_seconds",
			Help:      "Wall-clock time from claim to terminal write, in seconds.",
			Buckets:   cfg.DurationBuckets,
		},
		[]string{},
	)

	m.schedulerTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "task_scheduler",
			Name:      "scheduler_ticks_total",
			Help:      "Total number of scheduling passes performed.",
		},
	)

	registry.MustRegister(
		m.tasksByStatus,
		m.runningTasks,
		m.slotsAvailable,
		m.taskDuration,
		m.schedulerTicks,
	)

	return m
}

// ObserveTick implements scheduler.Recorder.
func (m *Metrics) ObserveTick() { m.schedulerTicks.Inc() }

// SetRunning implements scheduler.Recorder.
func (m *Metrics) SetRunning(count int) { m.runningTasks.Set(float64(count)) }

// SetSlotsAvailable implements scheduler.Recorder.
func (m *Metrics) SetSlotsAvailable(count int) { m.slotsAvailable.Set(float64(count)) }

// ObserveTaskDuration implements scheduler.Recorder.
func (m *Metrics) ObserveTaskDuration(seconds float64) {
	m.taskDuration.WithLabelValues().Observe(seconds)
}

// RefreshTaskCounts sets the tasks_total gauge-vec to the given snapshot,
// zeroing any status absent from counts so a status that drains to zero
// still reports rather than holding its last nonzero value.
func (m *Metrics) RefreshTaskCounts(counts store.StatusCounts) {
	for _, status := range []store.TaskStatus{
		store.TaskStatusWaiting,
		store.TaskStatusQueued,
		store.TaskStatusRunning,
		store.TaskStatusCompleted,
		store.TaskStatusFailed,
	} {
		m.tasksByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
