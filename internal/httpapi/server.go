// Package httpapi is the bridge's operational HTTP surface:
// liveness, metrics, and a session-registry dump for operators. It carries
// no wire protocol semantics — everything defined here is additive
// tooling, never a payload type on the bridge's own wire protocol.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SessionInfo is a read-only view of one registered session, for GET /sessions.
type SessionInfo struct {
	SessionID      string    `json:"session_id"`
	Role           string    `json:"role"`
	AgentID        string    `json:"agent_id"`
	State          string    `json:"state"`
	ConnectedSince time.Time `json:"connected_since"`
}

// MetricsSnapshot is the point-in-time counters served by GET /metrics.
type MetricsSnapshot struct {
	GameClients      int    `json:"game_clients"`
	Orchestrators    int    `json:"orchestrators"`
	TelemetryDropped uint64 `json:"telemetry_dropped_total"`
	ActionsRejected  uint64 `json:"actions_rejected_total"`
}

// DataSource is implemented by the bridge engine; keeping it as an
// interface here (rather than importing the engine package directly,
// which package main can't be imported by anyway) limits this package to
// exactly the read-only surface it needs.
type DataSource interface {
	Metrics() MetricsSnapshot
	Sessions() []SessionInfo
}

// Server is the Echo application serving the operational surface.
type Server struct {
	echo   *echo.Echo
	source DataSource
}

// New constructs an Echo app exposing /healthz, /metrics, /sessions,
// wired with panic recovery and a slog-based request-logging middleware.
func New(source DataSource) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, source: source}
	s.registerRoutes()
	return s
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()
			slog.Debug("admin http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", s.handleMetrics)
	s.echo.GET("/sessions", s.handleSessions)
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.source.Metrics())
}

func (s *Server) handleSessions(c echo.Context) error {
	sessions := s.source.Sessions()
	if sessions == nil {
		sessions = []SessionInfo{}
	}
	return c.JSON(http.StatusOK, sessions)
}
