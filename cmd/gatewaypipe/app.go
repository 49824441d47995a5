package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jittakal/gatewaypipe/internal/accounting"
	"github.com/jittakal/gatewaypipe/internal/archive"
	"github.com/jittakal/gatewaypipe/internal/config/dto"
	"github.com/jittakal/gatewaypipe/internal/executor"
	"github.com/jittakal/gatewaypipe/internal/generator"
	"github.com/jittakal/gatewaypipe/internal/kafka"
	"github.com/jittakal/gatewaypipe/internal/observability"
	"github.com/jittakal/gatewaypipe/internal/pipeline"
	"github.com/jittakal/gatewaypipe/internal/ringbuffer"
	"github.com/jittakal/gatewaypipe/internal/rpcref"
	"github.com/jittakal/gatewaypipe/internal/validator"
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
	"github.com/jittakal/gatewaypipe/pkg/event"
	"github.com/jittakal/gatewaypipe/pkg/storage"
)

// app holds the sinks behind the enabled pipelines.
type app struct {
	sinks     generator.Sinks
	validator event.Validator

	audit    *kafka.AuditPublisher
	archive  *archive.Factory
	writer   storage.Writer
	rpcCache *rpcref.Cache
	ledger   *accounting.Ledger

	logger *slog.Logger
}

// newApp creates the sinks and starts a pipeline for every enabled section.
// On error the sinks created so far are closed; started pipelines stay in
// the registry for the caller to shut down.
func newApp(ctx context.Context, cfg *dto.ApplicationConfig, pipelines *pipeline.Registry, logger *slog.Logger, metrics *observability.Metrics) (_ *app, err error) {
	a := &app{
		validator: validator.NewCloudEventsValidator(),
		logger:    logger,
	}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	if pc := cfg.Pipelines.Audit; pc.Enabled {
		publisher, err := kafka.NewAuditPublisher(kafka.ProducerConfig{
			BootstrapServers: cfg.Kafka.BootstrapServers,
			Topic:            cfg.Kafka.AuditTopic,
			ClientID:         cfg.Kafka.ClientID,
			Compression:      cfg.Kafka.Compression,
			MaxRetries:       cfg.Kafka.MaxRetries,
			Security: kafka.SecurityConfig{
				Protocol:           cfg.Kafka.SecurityProtocol,
				Mechanism:          cfg.Kafka.SASLMechanism,
				Username:           cfg.Kafka.SASLUsername,
				Password:           cfg.Kafka.SASLPassword,
				AWSRegion:          cfg.Kafka.AWSRegion,
				InsecureSkipVerify: cfg.Kafka.TLSInsecureSkipVerify,
			},
		}, logger, metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create audit publisher: %w", err)
		}
		a.audit = publisher

		provider, err := startPipeline("audit", pc, kafka.AuditStrategyFactory(publisher, a.validator, logger), pipelines, logger, metrics)
		if err != nil {
			return nil, err
		}
		a.sinks.Audit = provider
	}

	if pc := cfg.Pipelines.Archive; pc.Enabled {
		writer, format, err := newWriter(ctx, cfg, logger, metrics)
		if err != nil {
			return nil, err
		}
		a.writer = writer

		protocol, bucket := cfg.Storage.Location()
		factory, err := archive.NewFactory(archive.Config{
			Writer:           writer,
			Router:           archiveRouter(protocol, bucket, cfg.Storage.BasePath),
			Policy:           rotationPolicy(cfg.FileRotation),
			Validator:        a.validator,
			Format:           format,
			MaxBufferBytes:   int64(cfg.Archive.BufferSizeMB) * 1024 * 1024,
			MaxBufferRecords: cfg.FileRotation.MaxRecordsPerFile,
			WriteTimeout:     time.Duration(cfg.Archive.WriteTimeoutSeconds) * time.Second,
			Logger:           logger,
			Metrics:          metrics,
		})
		if err != nil {
			return nil, err
		}
		a.archive = factory

		provider, err := startPipeline("archive", pc, dispatch.StrategyFactory[*event.Record](factory), pipelines, logger, metrics)
		if err != nil {
			return nil, err
		}
		a.sinks.Archive = provider
	}

	if pc := cfg.Pipelines.Metrics; pc.Enabled {
		provider, err := startPipeline("metrics", pc, observability.RequestMetricsFactory(metrics), pipelines, logger, metrics)
		if err != nil {
			return nil, err
		}
		a.sinks.Metrics = provider
	}

	if pc := cfg.Pipelines.RateLimit; pc.Enabled {
		ledger, err := accounting.NewLedger(accounting.Config{
			MaxKeys:         cfg.RateLimit.MaxKeys,
			TokensPerSecond: cfg.RateLimit.TokensPerSecond,
			Burst:           cfg.RateLimit.Burst,
		}, metrics)
		if err != nil {
			return nil, err
		}
		provider, err := startPipeline("ratelimit", pc, ledger.StrategyFactory(), pipelines, logger, metrics)
		if err != nil {
			return nil, err
		}
		a.sinks.RateLimit = provider
		a.ledger = ledger
	}

	if pc := cfg.Pipelines.RPC; pc.Enabled {
		cache, err := rpcref.NewCache(cfg.RPC.CacheSize, rpcref.GRPCDialer{
			DefaultTarget:  cfg.RPC.DefaultTarget,
			Insecure:       cfg.RPC.Insecure,
			ConnectTimeout: time.Duration(cfg.RPC.DialTimeoutMS) * time.Millisecond,
		}, logger, metrics)
		if err != nil {
			return nil, err
		}
		a.rpcCache = cache

		provider, err := startPipeline("rpc", pc, cache.WarmupFactory(), pipelines, logger, metrics)
		if err != nil {
			return nil, err
		}
		a.sinks.RPC = provider
	}

	return a, nil
}

// startPipeline starts a pipeline from its configuration section and registers it.
func startPipeline[T any](
	name string,
	pc dto.PipelineConfig,
	factory dispatch.StrategyFactory[T],
	pipelines *pipeline.Registry,
	logger *slog.Logger,
	metrics pipeline.MetricsCollector,
) (*pipeline.Provider[T], error) {
	policy, err := executor.ParseQueuePolicy(pc.Executor.QueuePolicy)
	if err != nil {
		return nil, err
	}

	wait, err := ringbuffer.ParseWaitStrategy(pc.WaitStrategy)
	if err != nil {
		return nil, err
	}

	manager := pipeline.NewManager[T](logger, metrics)
	provider, err := manager.Start(pipeline.Config[T]{
		Name:          name,
		BufferSize:    pc.BufferSize,
		ConsumerCount: pc.ConsumerCount,
		Factory:       factory,
		ExecutorConfig: executor.Config{
			Workers:       pc.Executor.Workers,
			Policy:        policy,
			QueueCapacity: pc.Executor.QueueCapacity,
			TaskTimeout:   pc.Executor.TaskTimeout(),
		},
		WaitStrategy: wait,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s pipeline: %w", name, err)
	}
	if err := pipelines.Register(manager); err != nil {
		_ = manager.Stop()
		return nil, err
	}
	return provider, nil
}

// flushPeriodically fires the age threshold of idle archive streams.
func (a *app) flushPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.archive.FlushDue(ctx); err != nil {
				a.logger.Error("periodic archive flush failed", "error", err)
			}
		}
	}
}

// close flushes the archive buffers and releases the sinks. It runs after
// the pipelines have drained.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.archive != nil {
		if err := a.archive.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final archive flush: %w", err))
		}
	}
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.rpcCache != nil {
		a.rpcCache.InvalidateAll()
	}
	return errors.Join(errs...)
}
