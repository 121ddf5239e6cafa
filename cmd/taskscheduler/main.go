package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/sammayank765/task-scheduler/internal/profile"
	"github.com/sammayank765/task-scheduler/internal/version"
	"github.com/sammayank765/task-scheduler/metrics"
	"github.com/sammayank765/task-scheduler/recovery"
	"github.com/sammayank765/task-scheduler/runner"
	"github.com/sammayank765/task-scheduler/scheduler"
	"github.com/sammayank765/task-scheduler/server"
	v1 "github.com/sammayank765/task-scheduler/server/api/v1"
	"github.com/sammayank765/task-scheduler/store"
	"github.com/sammayank765/task-scheduler/store/db/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "taskscheduler",
	Short: `A single-node, dependency-aware task scheduler with a polling engine, crash recovery, and a JSON HTTP API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Only load .env for direct binary execution (not when running as systemd service).
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			fmt.Println(version.StringFull())
		} else {
			fmt.Println(version.String())
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("verbose", false, "include commit, branch, and build time")
	rootCmd.AddCommand(versionCmd)

	viper.SetDefault("mode", "demo")
	viper.SetDefault("port", 3000)
	viper.SetDefault("max-concurrent-tasks", 3)
	viper.SetDefault("poll-interval-ms", 100)
	viper.SetDefault("log-level", "info")

	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address to bind the HTTP server to")
	rootCmd.PersistentFlags().Int("port", 3000, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (only sqlite is supported)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka DSN)")
	rootCmd.PersistentFlags().Int("max-concurrent-tasks", 3, "maximum number of tasks running at once")
	rootCmd.PersistentFlags().Int("poll-interval-ms", 100, "scheduler poll interval in milliseconds")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "max-concurrent-tasks", "poll-interval-ms", "log-level"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("TASKSCHEDULER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func run() error {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) { slog.Debug(fmt.Sprintf(format, args...)) })); err != nil {
		slog.Warn("failed to set GOMAXPROCS", "error", err)
	}
	if _, err := memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(0.9)); err != nil {
		slog.Debug("failed to set GOMEMLIMIT from cgroup", "error", err)
	}

	instanceProfile := &profile.Profile{
		Mode:               viper.GetString("mode"),
		Addr:               viper.GetString("addr"),
		Port:               viper.GetInt("port"),
		Data:               viper.GetString("data"),
		Driver:             viper.GetString("driver"),
		DSN:                viper.GetString("dsn"),
		MaxConcurrentTasks: viper.GetInt("max-concurrent-tasks"),
		PollIntervalMS:     viper.GetInt("poll-interval-ms"),
		LogLevel:           viper.GetString("log-level"),
		Version:            version.GetCurrentVersion(viper.GetString("mode")),
	}
	if err := instanceProfile.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configureLogging(instanceProfile.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sqlite.NewDB(instanceProfile.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	st := store.New(db)
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	recovered, err := recovery.Run(ctx, st, slog.Default())
	if err != nil {
		return fmt.Errorf("crash recovery failed: %w", err)
	}
	slog.Info("startup recovery complete", "recovered", recovered)

	reg := metrics.New(metrics.Config{})
	sched := scheduler.New(st, runner.NewSleepRunner(), scheduler.Config{
		MaxConcurrent: instanceProfile.MaxConcurrentTasks,
		PollInterval:  msToDuration(instanceProfile.PollIntervalMS),
	}, reg, slog.Default())

	svc := v1.NewService(st, sched, instanceProfile.MaxConcurrentTasks)
	srv := server.NewServer(instanceProfile, st, reg.Handler(), svc)

	c := make(chan os.Signal, 1)
	signal.Notify(c, terminationSignals...)

	go func() {
		// Run returns an error only on a fatal store error; that starts the
		// same graceful shutdown as a termination signal.
		if err := sched.Run(ctx); err != nil {
			select {
			case c <- os.Interrupt:
			default:
			}
		}
	}()

	if err := srv.Start(ctx); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	printGreetings(instanceProfile)

	<-c
	slog.Info("shutting down")
	sched.Stop()
	srv.Shutdown(ctx)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), server.ShutdownGracePeriod)
	defer waitCancel()
	if err := sched.Wait(waitCtx); err != nil {
		slog.Error("in-flight runners did not finish within the shutdown grace period, forcing exit", "error", err)
		cancel()
		os.Exit(1)
	}
	cancel()

	return nil
}

func configureLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("task-scheduler %s started successfully!\n", p.Version)
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s (%s)\n", p.Driver, p.DSN)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Max concurrent tasks: %d\n", p.MaxConcurrentTasks)

	if p.Addr == "" {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
