package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/gatewaypipe/internal/config/dto"
	"github.com/jittakal/gatewaypipe/internal/executor"
	"github.com/jittakal/gatewaypipe/internal/pipeline"
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPipeline(t *testing.T, name string) *pipeline.Manager[int] {
	t.Helper()
	m := pipeline.NewManager[int](testLogger(), nil)
	_, err := m.Start(pipeline.Config[int]{
		Name:          name,
		BufferSize:    8,
		ConsumerCount: 1,
		Factory:       dispatch.SharedFactory[int]("noop", dispatch.StrategyFunc[int](func(context.Context, int) error { return nil })),
		Executor:      executor.Direct{},
	})
	if err != nil {
		t.Fatalf("Start(%s) error = %v", name, err)
	}
	t.Cleanup(func() { _ = m.Stop() })
	return m
}

func TestRegistryChecker(t *testing.T) {
	registry := pipeline.NewRegistry()
	checker := NewRegistryChecker(registry)

	if !checker.Liveness() {
		t.Error("Liveness() = false, want true")
	}
	if checker.Readiness(context.Background()) {
		t.Error("Readiness() with no pipelines = true, want false")
	}

	audit := startPipeline(t, "audit")
	_ = registry.Register(audit)
	if !checker.Readiness(context.Background()) {
		t.Error("Readiness() = false, want true")
	}
	if got := checker.GetStatus()["audit"]; got != pipeline.StateStarted.String() {
		t.Errorf("GetStatus()[audit] = %q, want %q", got, pipeline.StateStarted.String())
	}

	checker.SetDraining()
	if checker.Readiness(context.Background()) {
		t.Error("Readiness() while draining = true, want false")
	}
	if got := checker.GetStatus()["shutdown"]; got != "draining" {
		t.Errorf("GetStatus()[shutdown] = %q, want draining", got)
	}
}

func TestHealthMux(t *testing.T) {
	registry := pipeline.NewRegistry()
	checker := NewRegistryChecker(registry)
	mux := HealthMux(dto.HealthConfig{LivenessPath: "/live", ReadinessPath: "/ready"}, checker, nil, testLogger())

	tests := []struct {
		name       string
		path       string
		ready      bool
		wantStatus int
		wantBody   string
	}{
		{"liveness", "/live", false, http.StatusOK, "alive"},
		{"readiness without pipelines", "/ready", false, http.StatusServiceUnavailable, "not ready"},
		{"readiness with pipelines", "/ready", true, http.StatusOK, "ready"},
		{"default path not mounted", "/health/live", false, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ready && !registry.Running() {
				_ = registry.Register(startPipeline(t, "metrics"))
			}

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody == "" {
				return
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantBody)
			}
			if _, err := time.Parse(time.RFC3339, resp.Timestamp); err != nil {
				t.Errorf("Timestamp %q is not RFC3339: %v", resp.Timestamp, err)
			}
		})
	}
}

func TestMetricsMux(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	mux := MetricsMux(dto.MetricsConfig{}, registry)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_total 1") {
		t.Errorf("body does not contain test_total:\n%s", rec.Body.String())
	}
}

func TestServer_StartShutdown(t *testing.T) {
	s := NewServer(
		dto.HealthConfig{Port: 0},
		dto.MetricsConfig{Enabled: false},
		NewRegistryChecker(pipeline.NewRegistry()),
		nil,
		prometheus.NewRegistry(),
		testLogger(),
	)
	if len(s.servers()) != 1 {
		t.Errorf("servers = %d, want 1 with metrics disabled", len(s.servers()))
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
