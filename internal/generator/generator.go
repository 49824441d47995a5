// Package generator produces synthetic gateway traffic and publishes it into
// the side-work pipelines. It exercises a deployment without a gateway in
// front of it.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"

	"github.com/jittakal/gatewaypipe/pkg/dispatch"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// Event attribute defaults
const (
	DefaultEventSource = "/gateway/plugins"
	DefaultEventType   = "gateway.request.audited"
	ContentTypeJSON    = "application/json"
)

// Config controls the synthetic traffic.
type Config struct {
	RequestsPerSec int
	Plugins        []string
	Services       int
	EventSource    string
	EventType      string
}

// Sinks are the pipelines a generator publishes into. Nil sinks are skipped.
type Sinks struct {
	Audit     dispatch.Publisher[*event.Record]
	Archive   dispatch.Publisher[*event.Record]
	Metrics   dispatch.Publisher[event.RequestMetric]
	RateLimit dispatch.Publisher[event.RateUsage]
	RPC       dispatch.Publisher[event.ServiceMetadata]
}

// RequestData is the payload of a synthetic audit event.
type RequestData struct {
	RequestID string `json:"requestId"`
	Route     string `json:"route"`
	Method    string `json:"method"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latencyMs"`
	ClientIP  string `json:"clientIp"`
	UserAgent string `json:"userAgent"`
	Service   string `json:"service,omitempty"`
}

// Request is one synthetic gateway request and the side work it causes.
type Request struct {
	Record  *event.Record
	Metric  event.RequestMetric
	Usage   event.RateUsage
	Service event.ServiceMetadata
}

// Generator generates fake gateway requests. It is not safe for concurrent use.
type Generator struct {
	config   Config
	faker    faker.Faker
	sinks    Sinks
	services []event.ServiceMetadata
	logger   *slog.Logger
}

// New creates a generator.
func New(cfg Config, sinks Sinks, logger *slog.Logger) *Generator {
	if len(cfg.Plugins) == 0 {
		cfg.Plugins = []string{"request_log"}
	}
	if cfg.Services <= 0 {
		cfg.Services = 1
	}
	if cfg.EventSource == "" {
		cfg.EventSource = DefaultEventSource
	}
	if cfg.EventType == "" {
		cfg.EventType = DefaultEventType
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 1
	}

	g := &Generator{
		config: cfg,
		faker:  faker.New(),
		sinks:  sinks,
		logger: logger,
	}
	g.services = g.generateServices(cfg.Services)
	return g
}

func (g *Generator) generateServices(n int) []event.ServiceMetadata {
	balancers := []string{"random", "roundrobin"}
	services := make([]event.ServiceMetadata, n)
	for i := range services {
		name := g.faker.Lorem().Word()
		ext, _ := json.Marshal(map[string]interface{}{
			"loadbalance": g.faker.RandomStringElement(balancers),
			"retries":     g.faker.IntBetween(0, 3),
			"timeout":     g.faker.IntBetween(500, 5000),
			"url":         fmt.Sprintf("grpc://localhost:%d", 50051+i),
		})
		services[i] = event.ServiceMetadata{
			AppName:     name + "-app",
			Path:        fmt.Sprintf("/%s/%d/invoke", name, i),
			ServiceName: fmt.Sprintf("gateway.demo.v1.Service%d", i),
			MethodName:  "Invoke",
			RPCType:     "grpc",
			RPCExt:      string(ext),
			Enabled:     true,
		}
	}
	return services
}

// Services returns the synthetic upstream services.
func (g *Generator) Services() []event.ServiceMetadata {
	return append([]event.ServiceMetadata(nil), g.services...)
}

// Request generates one gateway request.
func (g *Generator) Request() (Request, error) {
	now := time.Now().UTC()
	plugin := g.faker.RandomStringElement(g.config.Plugins)
	service := g.services[g.faker.IntBetween(0, len(g.services)-1)]
	// Roughly one in twenty metadata updates disables its service.
	service.Enabled = g.faker.IntBetween(1, 20) != 1

	data := RequestData{
		RequestID: uuid.New().String(),
		Route:     "/api/" + g.faker.Lorem().Word(),
		Method:    g.faker.RandomStringElement([]string{"GET", "GET", "GET", "POST", "PUT", "DELETE"}),
		Status:    g.randomStatus(),
		LatencyMS: int64(g.faker.IntBetween(1, 800)),
		ClientIP:  g.faker.Internet().Ipv4(),
		UserAgent: g.faker.UserAgent().UserAgent(),
		Service:   service.ServiceName,
	}

	ce := cloudevents.NewEvent()
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetID(data.RequestID)
	ce.SetType(g.config.EventType)
	ce.SetSource(g.config.EventSource + "/" + plugin)
	ce.SetTime(now)
	ce.SetExtension("plugin", plugin)
	if err := ce.SetData(ContentTypeJSON, data); err != nil {
		return Request{}, fmt.Errorf("failed to set event data: %w", err)
	}

	latency := time.Duration(data.LatencyMS) * time.Millisecond
	record := &event.Record{
		Event: event.FromSDK(ce),
		Gateway: event.GatewayMetadata{
			Plugin:    plugin,
			Route:     data.Route,
			Method:    data.Method,
			Status:    data.Status,
			Latency:   latency,
			ClientIP:  data.ClientIP,
			Timestamp: now,
		},
		ProcessedAt: now,
	}

	return Request{
		Record: record,
		Metric: event.RequestMetric{
			Plugin:        plugin,
			Route:         data.Route,
			Method:        data.Method,
			Status:        data.Status,
			Latency:       latency,
			RequestBytes:  int64(g.faker.IntBetween(0, 4096)),
			ResponseBytes: int64(g.faker.IntBetween(64, 65536)),
		},
		Usage: event.RateUsage{
			Key:    data.ClientIP,
			Plugin: plugin,
			Tokens: 1,
			At:     now,
		},
		Service: service,
	}, nil
}

func (g *Generator) randomStatus() int {
	statuses := []int{200, 201, 204, 400, 401, 404, 429, 500, 503}
	weights := []int{70, 5, 5, 5, 3, 5, 3, 2, 2}

	n := g.faker.IntBetween(1, 100)
	cumulative := 0
	for i, weight := range weights {
		cumulative += weight
		if n <= cumulative {
			return statuses[i]
		}
	}
	return statuses[0]
}

// Emit generates one request and publishes it into every configured sink.
func (g *Generator) Emit() error {
	req, err := g.Request()
	if err != nil {
		return err
	}

	var errs []error
	if g.sinks.Audit != nil {
		errs = append(errs, wrap("audit", g.sinks.Audit.Publish(req.Record)))
	}
	if g.sinks.Archive != nil {
		errs = append(errs, wrap("archive", g.sinks.Archive.Publish(req.Record)))
	}
	if g.sinks.Metrics != nil {
		errs = append(errs, wrap("metrics", g.sinks.Metrics.Publish(req.Metric)))
	}
	if g.sinks.RateLimit != nil {
		errs = append(errs, wrap("ratelimit", g.sinks.RateLimit.Publish(req.Usage)))
	}
	if g.sinks.RPC != nil {
		errs = append(errs, wrap("rpc", g.sinks.RPC.Publish(req.Service)))
	}
	return errors.Join(errs...)
}

func wrap(pipeline string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("publish to %s: %w", pipeline, err)
}

// Run emits requests at the configured rate until ctx is done.
func (g *Generator) Run(ctx context.Context) {
	interval := time.Second / time.Duration(g.config.RequestsPerSec)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.logger.Info("starting traffic generator",
		"requests_per_second", g.config.RequestsPerSec,
		"plugins", g.config.Plugins,
		"services", len(g.services),
	)

	var emitted, failed int
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("stopping traffic generator", "emitted", emitted, "failed", failed)
			return
		case <-ticker.C:
			if err := g.Emit(); err != nil {
				failed++
				g.logger.Warn("failed to publish synthetic request", "error", err)
				continue
			}
			emitted++
		}
	}
}
