package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnvVars() {
	for _, key := range []string{
		"TASKSCHEDULER_MODE",
		"TASKSCHEDULER_ADDR",
		"TASKSCHEDULER_PORT",
		"TASKSCHEDULER_DATA",
		"TASKSCHEDULER_DRIVER",
		"TASKSCHEDULER_DSN",
		"TASKSCHEDULER_MAX_CONCURRENT_TASKS",
		"TASKSCHEDULER_POLL_INTERVAL_MS",
		"TASKSCHEDULER_LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnvVars()
	t.Cleanup(clearEnvVars)

	p := &Profile{}
	p.FromEnv()

	require.Equal(t, "demo", p.Mode)
	require.Equal(t, 3000, p.Port)
	require.Equal(t, "sqlite", p.Driver)
	require.Equal(t, 3, p.MaxConcurrentTasks)
	require.Equal(t, 100, p.PollIntervalMS)
	require.Equal(t, "info", p.LogLevel)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnvVars()
	t.Cleanup(clearEnvVars)

	os.Setenv("TASKSCHEDULER_PORT", "9090")
	os.Setenv("TASKSCHEDULER_MAX_CONCURRENT_TASKS", "20")
	os.Setenv("TASKSCHEDULER_LOG_LEVEL", "debug")

	p := &Profile{}
	p.FromEnv()

	require.Equal(t, 9090, p.Port)
	require.Equal(t, 20, p.MaxConcurrentTasks)
	require.Equal(t, "debug", p.LogLevel)
}

func TestValidateFillsDSNDefault(t *testing.T) {
	p := &Profile{
		Mode:               "demo",
		Data:               t.TempDir(),
		Driver:             "sqlite",
		Port:               8080,
		MaxConcurrentTasks: 5,
		PollIntervalMS:     100,
	}
	require.NoError(t, p.Validate())
	require.Equal(t, filepath.Join(p.Data, "tasks_demo.db"), p.DSN)
}

func TestValidateRejectsUnsupportedDriver(t *testing.T) {
	p := &Profile{
		Mode:               "demo",
		Data:               t.TempDir(),
		Driver:             "postgres",
		Port:               8080,
		MaxConcurrentTasks: 5,
		PollIntervalMS:     100,
	}
	require.Error(t, p.Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	p := &Profile{
		Mode:               "demo",
		Data:               t.TempDir(),
		Driver:             "sqlite",
		Port:               0,
		MaxConcurrentTasks: 5,
		PollIntervalMS:     100,
	}
	require.Error(t, p.Validate())
}

func TestValidateRejectsNonPositiveConcurrency(t *testing.T) {
	p := &Profile{
		Mode:               "demo",
		Data:               t.TempDir(),
		Driver:             "sqlite",
		Port:               8080,
		MaxConcurrentTasks: 0,
		PollIntervalMS:     100,
	}
	require.Error(t, p.Validate())
}

func TestValidateCreatesMissingDataDir(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "nested", "data")

	p := &Profile{
		Mode:               "demo",
		Data:               target,
		Driver:             "sqlite",
		Port:               8080,
		MaxConcurrentTasks: 5,
		PollIntervalMS:     100,
	}
	require.NoError(t, p.Validate())

	info, err := os.Stat(target)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestIsDev(t *testing.T) {
	p := &Profile{Mode: "prod"}
	require.False(t, p.IsDev())
	p.Mode = "dev"
	require.True(t, p.IsDev())
}
