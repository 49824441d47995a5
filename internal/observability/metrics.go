package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Pipeline metrics
	EventsPublished       *prometheus.CounterVec
	EventsDispatched      *prometheus.CounterVec
	EventsDropped         *prometheus.CounterVec
	DispatchFaults        *prometheus.CounterVec
	HandleDuration        *prometheus.HistogramVec
	RingRemainingCapacity *prometheus.GaugeVec
	ExecutorQueueDepth    *prometheus.GaugeVec

	// Audit sink metrics
	AuditMessagesSent *prometheus.CounterVec
	AuditSendDuration *prometheus.HistogramVec

	// Archive buffer metrics
	BufferSize        *prometheus.GaugeVec
	BufferRecordCount *prometheus.GaugeVec

	// Storage metrics
	FilesWritten         *prometheus.CounterVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec

	// Gateway request metrics
	GatewayRequests       *prometheus.CounterVec
	GatewayLatency        *prometheus.HistogramVec
	GatewayTransferred    *prometheus.CounterVec
	RateLimitDecisions    *prometheus.CounterVec
	RateLimitTrackedKeys  prometheus.Gauge
	RPCReferences         prometheus.Gauge
	RPCReferenceEvictions *prometheus.CounterVec
	RPCReferenceBuilds    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Pipeline metrics
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_events_published_total",
				Help: "Total number of events published into a pipeline ring",
			},
			[]string{"pipeline"},
		),
		EventsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_events_dispatched_total",
				Help: "Total number of events handed to the dispatch executor",
			},
			[]string{"pipeline"},
		),
		EventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_events_dropped_total",
				Help: "Total number of events dropped by the fault policy",
			},
			[]string{"pipeline", "reason"},
		),
		DispatchFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_dispatch_faults_total",
				Help: "Total number of isolated errors and panics",
			},
			[]string{"pipeline", "stage"},
		),
		HandleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_handle_duration_seconds",
				Help:    "Duration of strategy invocations",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"pipeline"},
		),
		RingRemainingCapacity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_ring_remaining_capacity",
				Help: "Slots that can be claimed without blocking",
			},
			[]string{"pipeline"},
		),
		ExecutorQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pipeline_executor_queue_depth",
				Help: "Tasks waiting for a dispatch executor worker",
			},
			[]string{"pipeline"},
		),

		// Audit sink metrics
		AuditMessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_messages_sent_total",
				Help: "Total number of audit events sent to Kafka",
			},
			[]string{"topic", "status"},
		),
		AuditSendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audit_send_duration_seconds",
				Help:    "Duration of synchronous audit sends",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"topic"},
		),

		// Archive buffer metrics
		BufferSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "buffer_size_bytes",
				Help: "Current buffer size in bytes",
			},
			[]string{"plugin", "shard"},
		),
		BufferRecordCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "buffer_record_count",
				Help: "Current number of records in buffer",
			},
			[]string{"plugin", "shard"},
		),

		// Storage metrics
		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_written_total",
				Help: "Total number of files written to storage",
			},
			[]string{"plugin", "format", "status"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of complete storage write operations including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"plugin"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of files written to storage",
				Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12), // 64KB to 128MB
			},
			[]string{"plugin", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),

		// Gateway request metrics
		GatewayRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of gateway requests reported by plugins",
			},
			[]string{"plugin", "method", "status"},
		),
		GatewayLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Upstream latency of gateway requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"plugin"},
		),
		GatewayTransferred: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_transferred_bytes_total",
				Help: "Bytes transferred through the gateway",
			},
			[]string{"plugin", "direction"},
		),
		RateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratelimit_decisions_total",
				Help: "Rate-limit accounting decisions",
			},
			[]string{"plugin", "decision"},
		),
		RateLimitTrackedKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ratelimit_tracked_keys",
				Help: "Number of keys held by the rate-limit ledger",
			},
		),
		RPCReferences: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rpc_references",
				Help: "Number of cached RPC references",
			},
		),
		RPCReferenceEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_reference_evictions_total",
				Help: "RPC references removed from the cache",
			},
			[]string{"reason"},
		),
		RPCReferenceBuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_reference_builds_total",
				Help: "RPC reference build attempts",
			},
			[]string{"status"},
		),
	}
}

// IncPublished increments the published counter of a pipeline.
func (m *Metrics) IncPublished(pipeline string) {
	m.EventsPublished.WithLabelValues(pipeline).Inc()
}

// IncDispatched increments the dispatched counter of a pipeline.
func (m *Metrics) IncDispatched(pipeline string) {
	m.EventsDispatched.WithLabelValues(pipeline).Inc()
}

// IncDropped increments the dropped counter.
func (m *Metrics) IncDropped(pipeline string, reason string) {
	m.EventsDropped.WithLabelValues(pipeline, reason).Inc()
}

// IncFaults increments the fault counter for a dispatch stage.
func (m *Metrics) IncFaults(pipeline string, stage string) {
	m.DispatchFaults.WithLabelValues(pipeline, stage).Inc()
}

// ObserveHandleDuration observes a strategy invocation.
func (m *Metrics) ObserveHandleDuration(pipeline string, duration float64) {
	m.HandleDuration.WithLabelValues(pipeline).Observe(duration)
}

// SetRemainingCapacity sets the ring capacity gauge.
func (m *Metrics) SetRemainingCapacity(pipeline string, slots float64) {
	m.RingRemainingCapacity.WithLabelValues(pipeline).Set(slots)
}

// SetExecutorQueueDepth sets the executor queue gauge.
func (m *Metrics) SetExecutorQueueDepth(pipeline string, depth float64) {
	m.ExecutorQueueDepth.WithLabelValues(pipeline).Set(depth)
}

// IncAuditSent increments audit messages sent counter.
func (m *Metrics) IncAuditSent(topic string, status string) {
	m.AuditMessagesSent.WithLabelValues(topic, status).Inc()
}

// ObserveAuditSendDuration observes audit send duration.
func (m *Metrics) ObserveAuditSendDuration(topic string, duration float64) {
	m.AuditSendDuration.WithLabelValues(topic).Observe(duration)
}

// SetBufferStats sets archive buffer gauges.
func (m *Metrics) SetBufferStats(plugin string, shard int, sizeBytes int64, records int) {
	m.BufferSize.WithLabelValues(plugin, fmt.Sprintf("%d", shard)).Set(float64(sizeBytes))
	m.BufferRecordCount.WithLabelValues(plugin, fmt.Sprintf("%d", shard)).Set(float64(records))
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(plugin string, format string, status string) {
	m.FilesWritten.WithLabelValues(plugin, format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(plugin string, format string, size float64) {
	m.FileSize.WithLabelValues(plugin, format).Observe(size)
}

// ObserveStorageWriteDuration observes storage write duration.
func (m *Metrics) ObserveStorageWriteDuration(plugin string, duration float64) {
	m.StorageWriteDuration.WithLabelValues(plugin).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// IncRateLimitDecision counts an allowed or denied accounting decision.
func (m *Metrics) IncRateLimitDecision(plugin string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.RateLimitDecisions.WithLabelValues(plugin, decision).Inc()
}

// SetRateLimitTrackedKeys sets the ledger size gauge.
func (m *Metrics) SetRateLimitTrackedKeys(n int) {
	m.RateLimitTrackedKeys.Set(float64(n))
}

// SetRPCReferences sets the RPC reference cache size gauge.
func (m *Metrics) SetRPCReferences(n int) {
	m.RPCReferences.Set(float64(n))
}

// IncRPCReferenceEvictions counts a removed RPC reference.
func (m *Metrics) IncRPCReferenceEvictions(reason string) {
	m.RPCReferenceEvictions.WithLabelValues(reason).Inc()
}

// IncRPCReferenceBuilds counts an RPC reference build attempt.
func (m *Metrics) IncRPCReferenceBuilds(status string) {
	m.RPCReferenceBuilds.WithLabelValues(status).Inc()
}
