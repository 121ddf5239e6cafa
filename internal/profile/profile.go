// Package profile loads and validates the scheduler's runtime configuration.
package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the scheduler server.
type Profile struct {
	Mode     string // demo, dev, prod
	Addr     string
	Port     int
	Data     string
	Driver   string // sqlite is the only supported driver today
	DSN      string
	Version  string

	MaxConcurrentTasks int
	PollIntervalMS     int
	LogLevel           string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("TASKSCHEDULER_MODE", "demo")
	p.Addr = getEnvOrDefault("TASKSCHEDULER_ADDR", "")
	p.Port = getEnvOrDefaultInt("TASKSCHEDULER_PORT", 3000)
	p.Data = getEnvOrDefault("TASKSCHEDULER_DATA", "")
	p.Driver = getEnvOrDefault("TASKSCHEDULER_DRIVER", "sqlite")
	p.DSN = getEnvOrDefault("TASKSCHEDULER_DSN", "")

	p.MaxConcurrentTasks = getEnvOrDefaultInt("TASKSCHEDULER_MAX_CONCURRENT_TASKS", 3)
	p.PollIntervalMS = getEnvOrDefaultInt("TASKSCHEDULER_POLL_INTERVAL_MS", 100)
	p.LogLevel = getEnvOrDefault("TASKSCHEDULER_LOG_LEVEL", "info")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if err := os.MkdirAll(dataDir, 0770); err != nil {
			return "", errors.Wrapf(err, "unable to create data folder %s", dataDir)
		}
	} else if err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate fills in derived defaults and checks the profile is internally
// consistent. It must run once at startup before the store or server are
// constructed.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Data == "" {
		if p.Mode == "prod" {
			if runtime.GOOS == "windows" {
				p.Data = filepath.Join(os.Getenv("ProgramData"), "taskscheduler")
			} else {
				p.Data = "/var/opt/taskscheduler"
			}
		} else {
			p.Data = "data"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.Driver != "sqlite" {
		return errors.Errorf("unsupported driver %q: only sqlite is supported", p.Driver)
	}
	if p.DSN == "" {
		dbFile := fmt.Sprintf("tasks_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}
	if p.MaxConcurrentTasks <= 0 {
		return errors.Errorf("max_concurrent_tasks must be a positive integer, got %d", p.MaxConcurrentTasks)
	}
	if p.PollIntervalMS <= 0 {
		return errors.Errorf("poll_interval_ms must be a positive integer, got %d", p.PollIntervalMS)
	}

	return nil
}
