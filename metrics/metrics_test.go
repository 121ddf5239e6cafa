package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/sammayank765/task-scheduler/store"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m io_prometheus_client.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRefreshTaskCountsSetsAllStatuses(t *testing.T) {
	m := New(Config{})
	m.RefreshTaskCounts(store.StatusCounts{
		store.TaskStatusQueued:   3,
		store.TaskStatusRunning:  1,
	})

	var gm io_prometheus_client.Metric
	require.NoError(t, m.tasksByStatus.WithLabelValues(string(store.TaskStatusQueued)).Write(&gm))
	require.Equal(t, float64(3), gm.GetGauge().GetValue())

	require.NoError(t, m.tasksByStatus.WithLabelValues(string(store.TaskStatusCompleted)).Write(&gm))
	require.Equal(t, float64(0), gm.GetGauge().GetValue())
}

func TestSetRunningAndSlotsAvailable(t *testing.T) {
	m := New(Config{})
	m.SetRunning(2)
	m.SetSlotsAvailable(8)
	require.Equal(t, float64(2), gaugeValue(t, m.runningTasks))
	require.Equal(t, float64(8), gaugeValue(t, m.slotsAvailable))
}

func TestObserveTickIncrementsCounter(t *testing.T) {
	m := New(Config{})
	m.ObserveTick()
	m.ObserveTick()

	var cm io_prometheus_client.Metric
	require.NoError(t, m.schedulerTicks.Write(&cm))
	require.Equal(t, float64(2), cm.GetCounter().GetValue())
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(Config{})
	require.NotNil(t, m.Handler())
	require.NotNil(t, m.Registry())
}
