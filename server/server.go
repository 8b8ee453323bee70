// Package server exposes the title generation endpoint used by the naming policy.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/hrygo/xflo/ai"
	"github.com/hrygo/xflo/ai/metrics"
	"github.com/hrygo/xflo/internal/profile"
)

type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	titles     ai.Completer
	metrics    *metrics.PrometheusExporter
	limiter    *clientLimiter
	listener   net.Listener
}

// NewServer builds the echo instance and registers every route.
func NewServer(_ context.Context, profile *profile.Profile, titles ai.Completer, exporter *metrics.PrometheusExporter) (*Server, error) {
	if titles == nil {
		return nil, fmt.Errorf("title completer is required")
	}

	s := &Server{
		Profile: profile,
		titles:  titles,
		metrics: exporter,
		limiter: newClientLimiter(rate.Limit(profile.TitleRPS), profile.TitleBurst),
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds())
			return nil
		},
	}))
	s.echoServer = echoServer

	echoServer.GET("/healthz", s.handleHealthz)
	echoServer.POST("/api/generate-title", s.handleGenerateTitle, s.limiter.middleware)
	if profile.MetricsEnable && exporter != nil {
		echoServer.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start listens on the profile address and serves until Shutdown. It returns
// once the listener is bound.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = listener
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	slog.Info("server stopped properly")
}
