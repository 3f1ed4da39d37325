// Package admin runs the side-channel HTTP server: liveness, readiness,
// and Prometheus scrape endpoints on a port distinct from the HTTP/1.0
// origin listener. It never speaks the origin wire protocol.
package admin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/atomic"

	"github.com/zep-us/dispatchd/pkg/logger"
)

// Server is the admin side channel: /healthz, /readyz, /metrics.
type Server struct {
	echo      *echo.Echo
	readiness *atomic.Bool
	port      int
}

// New builds an admin Server bound to port, sharing readiness with the
// caller so the origin listener's startup can flip it once ready.
func New(port int, readiness *atomic.Bool) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("dispatchd_admin"))

	s := &Server{echo: e, readiness: readiness, port: port}

	e.GET("/healthz", s.handleLiveness)
	e.GET("/readyz", s.handleReadiness)
	e.GET("/metrics", echoprometheus.NewHandler())

	return s
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleReadiness(c echo.Context) error {
	if s.readiness.Load() {
		return c.NoContent(http.StatusOK)
	}
	return c.NoContent(http.StatusServiceUnavailable)
}

// Serve blocks until ctx is cancelled, then shuts the admin server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", s.port)
		logger.Info("admin server listening on %s", addr)
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		if err := s.echo.Shutdown(context.Background()); err != nil {
			logger.Warn("admin server shutdown: %v", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
