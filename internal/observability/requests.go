package observability

import (
	"context"
	"strconv"

	"github.com/jittakal/gatewaypipe/pkg/dispatch"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// ObserveRequest records one gateway request observation.
func (m *Metrics) ObserveRequest(r event.RequestMetric) {
	plugin := r.Plugin
	if plugin == "" {
		plugin = "unknown"
	}
	m.GatewayRequests.WithLabelValues(plugin, r.Method, strconv.Itoa(r.Status)).Inc()
	m.GatewayLatency.WithLabelValues(plugin).Observe(r.Latency.Seconds())
	if r.RequestBytes > 0 {
		m.GatewayTransferred.WithLabelValues(plugin, "in").Add(float64(r.RequestBytes))
	}
	if r.ResponseBytes > 0 {
		m.GatewayTransferred.WithLabelValues(plugin, "out").Add(float64(r.ResponseBytes))
	}
}

// RequestMetricsFactory returns the strategy factory of the metrics pipeline.
// Prometheus collectors are safe for concurrent use, so every unit shares one strategy.
func RequestMetricsFactory(m *Metrics) dispatch.StrategyFactory[event.RequestMetric] {
	return dispatch.SharedFactory[event.RequestMetric]("metrics",
		dispatch.StrategyFunc[event.RequestMetric](func(_ context.Context, r event.RequestMetric) error {
			m.ObserveRequest(r)
			return nil
		}))
}
