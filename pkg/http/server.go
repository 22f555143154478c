package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the operational HTTP surface: health and Prometheus metrics.
// It carries no product API.
type Server struct {
	echo            *echo.Echo
	port            int
	shutdownTimeout time.Duration
}

type ServerOption func(*Server)

func WithPort(port int) ServerOption {
	return func(s *Server) {
		if port > 0 {
			s.port = port
		}
	}
}

func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer builds the ops server. healthy is polled by the /healthz
// handler; metricsPath is where the Prometheus handler is mounted
// (empty disables it).
func NewServer(healthy func() bool, metricsPath string, opts ...ServerOption) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		if healthy != nil && !healthy() {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsPath != "" {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	s := &Server{
		echo:            e,
		port:            9090,
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the server in a background goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Error(err)
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
