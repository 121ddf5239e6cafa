// Package server wires the HTTP transport: route registration, middleware,
// and graceful shutdown around the scheduler and store.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sammayank765/task-scheduler/internal/profile"
	v1 "github.com/sammayank765/task-scheduler/server/api/v1"
	"github.com/sammayank765/task-scheduler/store"
)

// ShutdownGracePeriod bounds how long Shutdown waits for in-flight HTTP
// requests to finish before forcing closed. The process entry point uses the
// same bound when waiting for in-flight runners.
const ShutdownGracePeriod = 10 * time.Second

// Server owns the echo instance and its route registration.
type Server struct {
	e       *echo.Echo
	profile *profile.Profile
}

// NewServer builds a Server with all routes and middleware registered.
func NewServer(profile *profile.Profile, st *store.Store, metricsHandler http.Handler, svc *v1.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(requestLoggingMiddleware())

	e.GET("/metrics", echo.WrapHandler(metricsHandler))

	api := e.Group("/api")
	api.POST("/tasks", svc.CreateTask)
	api.GET("/tasks/:id", svc.GetTask)
	api.GET("/tasks", svc.ListTasks)
	api.GET("/stats", svc.Stats)
	api.GET("/health", svc.Health)

	return &Server{e: e, profile: profile}
}

// requestLoggingMiddleware logs each request at slog.Info, skipping the
// noisy /metrics scrape path via a Skipper func.
func requestLoggingMiddleware() echo.MiddlewareFunc {
	skipper := func(c echo.Context) bool {
		return c.Path() == "/metrics"
	}
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:      skipper,
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogError:     true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelError
			}
			slog.Log(c.Request().Context(), level, "request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
				"request_id", v.RequestID,
			)
			return nil
		},
	})
}

// Start begins serving on the profile's configured address and port. It
// returns immediately; any listen error surfaces later via the error log.
func (s *Server) Start(ctx context.Context) error {
	addr := s.profile.Addr
	go func() {
		if err := s.e.Start(addrString(addr, s.profile.Port)); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "server stopped unexpectedly", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server, bounded by ShutdownGracePeriod.
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, ShutdownGracePeriod)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown did not complete cleanly", "error", err)
	}
}

func addrString(addr string, port int) string {
	if addr == "" {
		addr = "0.0.0.0"
	}
	return addr + ":" + strconv.Itoa(port)
}
