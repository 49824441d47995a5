package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/audit"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ audit.Publisher = (*AuditPublisher)(nil)

// MetricsCollector defines metrics operations for the audit producer.
type MetricsCollector interface {
	IncAuditSent(topic string, status string)
	ObserveAuditSendDuration(topic string, duration float64)
}

// ProducerConfig contains Kafka producer configuration.
type ProducerConfig struct {
	BootstrapServers []string
	Topic            string
	ClientID         string
	Compression      string
	MaxRetries       int
	Security         SecurityConfig
}

// SaramaConfig builds an idempotent, acks=all producer configuration.
func (c ProducerConfig) SaramaConfig() (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	if c.ClientID != "" {
		config.ClientID = c.ClientID
	}
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	if c.MaxRetries > 0 {
		config.Producer.Retry.Max = c.MaxRetries
	}
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	codec, err := compressionCodec(c.Compression)
	if err != nil {
		return nil, err
	}
	config.Producer.Compression = codec

	if err := ConfigureSecurity(config, c.Security); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid producer config: %w", err)
	}
	return config, nil
}

func compressionCodec(name string) (sarama.CompressionCodec, error) {
	switch name {
	case "", "snappy":
		return sarama.CompressionSnappy, nil
	case "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("unsupported compression: %s", name)
	}
}

// AuditPublisher sends audit records to a Kafka topic as structured-mode
// CloudEvents keyed by event id.
type AuditPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
	metrics  MetricsCollector
	mu       sync.RWMutex
	closed   bool
}

// NewAuditPublisher connects a sync producer to the brokers.
func NewAuditPublisher(cfg ProducerConfig, logger *slog.Logger, metrics MetricsCollector) (*AuditPublisher, error) {
	if len(cfg.BootstrapServers) == 0 {
		return nil, &errors.InvalidConfigError{Field: "kafka.bootstrap_servers", Reason: "at least one broker is required"}
	}
	if cfg.Topic == "" {
		return nil, &errors.InvalidConfigError{Field: "kafka.audit_topic", Reason: "required"}
	}

	saramaConfig, err := cfg.SaramaConfig()
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(cfg.BootstrapServers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("audit publisher created",
		"bootstrap_servers", cfg.BootstrapServers,
		"topic", cfg.Topic,
		"security_protocol", cfg.Security.Protocol,
	)

	return NewAuditPublisherWithProducer(producer, cfg.Topic, logger, metrics), nil
}

// NewAuditPublisherWithProducer wraps an existing producer.
func NewAuditPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger, metrics MetricsCollector) *AuditPublisher {
	return &AuditPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
		metrics:  metrics,
	}
}

// Topic returns the destination topic.
func (p *AuditPublisher) Topic() string {
	return p.topic
}

// Publish sends record and waits for the broker acknowledgement.
func (p *AuditPublisher) Publish(ctx context.Context, record *event.Record) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrPublisherClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := p.message(record)
	if err != nil {
		p.observe("invalid", 0)
		return err
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.observe("error", time.Since(start))
		p.logger.Error("failed to publish audit event",
			"error", err,
			"topic", p.topic,
			"event_id", record.Event.ID,
		)
		return fmt.Errorf("failed to send audit event: %w", err)
	}
	p.observe("success", time.Since(start))

	p.logger.Debug("published audit event",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"event_id", record.Event.ID,
		"plugin", record.Gateway.Plugin,
	)
	return nil
}

func (p *AuditPublisher) observe(status string, d time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.IncAuditSent(p.topic, status)
	if d > 0 {
		p.metrics.ObserveAuditSendDuration(p.topic, d.Seconds())
	}
}

// message builds the Kafka message for record. The value is the CloudEvent
// in structured JSON form; ce_ and gateway_ headers carry the routing attributes.
func (p *AuditPublisher) message(record *event.Record) (*sarama.ProducerMessage, error) {
	if record == nil || record.Event == nil {
		return nil, &errors.ValidationError{Field: "event", Reason: "record has no event"}
	}

	sdkEvent, err := event.ToSDK(record.Event)
	if err != nil {
		return nil, &errors.ValidationError{EventID: record.Event.ID, Field: "event", Reason: err.Error()}
	}
	value, err := json.Marshal(sdkEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []sarama.RecordHeader{
		{Key: []byte("content-type"), Value: []byte("application/cloudevents+json; charset=UTF-8")},
		{Key: []byte("ce_id"), Value: []byte(sdkEvent.ID())},
		{Key: []byte("ce_source"), Value: []byte(sdkEvent.Source())},
		{Key: []byte("ce_type"), Value: []byte(sdkEvent.Type())},
		{Key: []byte("ce_specversion"), Value: []byte(sdkEvent.SpecVersion())},
	}
	if record.Gateway.Plugin != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte("gateway_plugin"), Value: []byte(record.Gateway.Plugin)})
	}
	if record.Gateway.Route != "" {
		headers = append(headers, sarama.RecordHeader{Key: []byte("gateway_route"), Value: []byte(record.Gateway.Route)})
	}

	timestamp := record.GetEventTime()
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(sdkEvent.ID()),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: timestamp,
	}, nil
}

// Close closes the producer. It is safe to call more than once.
func (p *AuditPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.producer != nil {
		if err := p.producer.Close(); err != nil {
			p.logger.Error("error closing producer", "error", err)
			return err
		}
	}

	p.logger.Info("audit publisher closed", "topic", p.topic)
	return nil
}
