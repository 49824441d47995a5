package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jittakal/gatewaypipe/internal/pipeline"
)

// HealthChecker reports component health.
type HealthChecker interface {
	Liveness() bool
	Readiness(ctx context.Context) bool
	GetStatus() map[string]string
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// RegistryChecker derives health from the pipeline registry.
// The process is ready while every registered pipeline is started.
type RegistryChecker struct {
	registry *pipeline.Registry
	draining atomic.Bool
}

// NewRegistryChecker creates a checker over registry.
func NewRegistryChecker(registry *pipeline.Registry) *RegistryChecker {
	return &RegistryChecker{registry: registry}
}

// Liveness always holds while the process serves requests.
func (c *RegistryChecker) Liveness() bool {
	return true
}

// Readiness reports whether the pipelines accept work.
func (c *RegistryChecker) Readiness(ctx context.Context) bool {
	return !c.draining.Load() && c.registry.Running()
}

// SetDraining marks the process as shutting down; readiness fails from then on.
func (c *RegistryChecker) SetDraining() {
	c.draining.Store(true)
}

// GetStatus returns the state of every pipeline.
func (c *RegistryChecker) GetStatus() map[string]string {
	status := make(map[string]string)
	for _, s := range c.registry.Stats() {
		status[s.Name] = s.State
	}
	if c.draining.Load() {
		status["shutdown"] = "draining"
	}
	return status
}

func writeHealth(w http.ResponseWriter, logger *slog.Logger, ok bool, up, down string, checks map[string]string) {
	response := HealthResponse{
		Status:    up,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	statusCode := http.StatusOK
	if !ok {
		response.Status = down
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

// LivenessHandler returns a handler for the Kubernetes liveness check.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, logger, checker.Liveness(), "alive", "not alive", nil)
	}
}

// ReadinessHandler returns a handler for the Kubernetes readiness check.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, logger, checker.Readiness(r.Context()), "ready", "not ready", checker.GetStatus())
	}
}
