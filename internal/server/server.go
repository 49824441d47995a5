// Package server implements the HTTP servers for health checks, admin
// endpoints and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jittakal/gatewaypipe/internal/config/dto"
)

// Server represents the HTTP servers for health, admin and metrics.
type Server struct {
	healthServer  *http.Server
	metricsServer *http.Server
	logger        *slog.Logger
}

// NewServer creates the HTTP servers. admin is mounted on the health port
// when non-nil; the metrics server is omitted when metrics are disabled.
func NewServer(
	health dto.HealthConfig,
	metrics dto.MetricsConfig,
	healthChecker HealthChecker,
	admin *Admin,
	registry *prometheus.Registry,
	logger *slog.Logger,
) *Server {
	s := &Server{logger: logger}

	s.healthServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", health.Port),
		Handler:      HealthMux(health, healthChecker, admin, logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if metrics.Enabled {
		s.metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", metrics.Port),
			Handler:      MetricsMux(metrics, registry),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	return s
}

// HealthMux builds the handler of the health port.
func HealthMux(cfg dto.HealthConfig, checker HealthChecker, admin *Admin, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(orDefault(cfg.LivenessPath, "/health/live"), LivenessHandler(checker, logger))
	mux.HandleFunc(orDefault(cfg.ReadinessPath, "/health/ready"), ReadinessHandler(checker, logger))
	if admin != nil {
		admin.Register(mux)
	}
	return mux
}

// MetricsMux builds the handler of the metrics port.
func MetricsMux(cfg dto.MetricsConfig, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(orDefault(cfg.Path, "/metrics"), promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return mux
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *Server) servers() []*http.Server {
	if s.metricsServer == nil {
		return []*http.Server{s.healthServer}
	}
	return []*http.Server{s.healthServer, s.metricsServer}
}

// Start starts the HTTP servers in the background.
func (s *Server) Start() error {
	for _, srv := range s.servers() {
		go func(srv *http.Server) {
			s.logger.Info("starting http server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("http server failed", "addr", srv.Addr, "error", err)
			}
		}(srv)
	}
	return nil
}

// Shutdown gracefully shuts down the servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP servers")

	servers := s.servers()
	errChan := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			errChan <- srv.Shutdown(ctx)
		}(srv)
	}

	var lastErr error
	for range servers {
		if err := <-errChan; err != nil {
			s.logger.Error("error shutting down server", "error", err)
			lastErr = err
		}
	}

	return lastErr
}
