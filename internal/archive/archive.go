// Package archive batches audit records per plugin and writes them to object
// storage as Parquet or Avro files.
//
// Each consumer unit of the archive pipeline owns a Strategy with its own
// shard number, so a stream (plugin, shard) is only ever written by one unit
// and file names never collide across units.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	internalbuffer "github.com/jittakal/gatewaypipe/internal/buffer"
	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/buffer"
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
	"github.com/jittakal/gatewaypipe/pkg/event"
	"github.com/jittakal/gatewaypipe/pkg/storage"
)

// MetricsCollector receives archive buffer observations.
type MetricsCollector interface {
	SetBufferStats(plugin string, shard int, sizeBytes int64, records int)
}

// Config wires the archive sink.
type Config struct {
	Writer    storage.Writer
	Router    storage.Router
	Policy    storage.RotationPolicy
	Validator event.Validator
	Format    event.FileFormat

	// MaxBufferBytes and MaxBufferRecords bound every stream buffer.
	MaxBufferBytes   int64
	MaxBufferRecords int

	// WriteTimeout bounds one storage write. Zero disables the bound.
	WriteTimeout time.Duration

	Logger  *slog.Logger
	Metrics MetricsCollector
}

func (c Config) validate() error {
	switch {
	case c.Writer == nil:
		return &apperrors.InvalidConfigError{Field: "archive.writer", Reason: "writer is required"}
	case c.Router == nil:
		return &apperrors.InvalidConfigError{Field: "archive.router", Reason: "router is required"}
	case c.Policy == nil:
		return &apperrors.InvalidConfigError{Field: "archive.policy", Reason: "rotation policy is required"}
	case c.Format != event.FormatParquet && c.Format != event.FormatAvro:
		return &apperrors.InvalidConfigError{Field: "storage.format", Value: c.Format, Reason: "must be parquet or avro"}
	case c.MaxBufferBytes < 0 || c.MaxBufferRecords < 0:
		return &apperrors.InvalidConfigError{Field: "archive.buffer", Reason: "limits must not be negative"}
	}
	return nil
}

// Factory creates one Strategy per consumer unit and keeps them for flushing.
type Factory struct {
	cfg    Config
	shards atomic.Int32

	mu         sync.Mutex
	strategies []*Strategy
}

var _ dispatch.StrategyFactory[*event.Record] = (*Factory)(nil)

// NewFactory validates cfg and returns an archive strategy factory.
func NewFactory(cfg Config) (*Factory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Factory{cfg: cfg}, nil
}

// Name identifies the archive side work.
func (f *Factory) Name() string {
	return "archive"
}

// Create returns the strategy of the next shard.
func (f *Factory) Create() dispatch.Strategy[*event.Record] {
	shard := int(f.shards.Add(1) - 1)
	s := &Strategy{
		cfg:     f.cfg,
		shard:   shard,
		buffers: internalbuffer.NewManager(f.cfg.MaxBufferBytes, f.cfg.MaxBufferRecords),
		logger:  f.cfg.Logger.With("pipeline", "archive", "shard", shard),
	}

	f.mu.Lock()
	f.strategies = append(f.strategies, s)
	f.mu.Unlock()
	return s
}

func (f *Factory) snapshot() []*Strategy {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Strategy(nil), f.strategies...)
}

// Flush writes every non-empty buffer of every shard.
func (f *Factory) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range f.snapshot() {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FlushDue writes the buffers the rotation policy asks to rotate. It is
// called periodically so that age thresholds fire on idle streams.
func (f *Factory) FlushDue(ctx context.Context) error {
	var errs []error
	for _, s := range f.snapshot() {
		if err := s.flushWhere(ctx, f.cfg.Policy.ShouldRotate); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Strategy buffers the records of one shard.
type Strategy struct {
	cfg     Config
	shard   int
	buffers *internalbuffer.Manager
	logger  *slog.Logger

	// mu serializes flushes of this shard.
	mu sync.Mutex
}

// Shard returns the shard number of the strategy.
func (s *Strategy) Shard() int {
	return s.shard
}

// Handle validates record and appends it to its stream buffer, flushing when
// the rotation policy fires or the buffer is full.
func (s *Strategy) Handle(ctx context.Context, record *event.Record) error {
	if record == nil || record.Event == nil {
		return &apperrors.ValidationError{Field: "event", Reason: "record has no event"}
	}
	if s.cfg.Validator != nil {
		if err := s.cfg.Validator.Validate(record.Event); err != nil {
			return err
		}
	}

	stream := event.StreamID{Plugin: record.Gateway.Plugin, Shard: s.shard}
	buf := s.buffers.GetOrCreate(stream)

	err := buf.Add(*record)
	if errors.Is(err, apperrors.ErrBufferFull) {
		if err := s.flush(ctx, stream, buf); err != nil {
			return err
		}
		err = buf.Add(*record)
	}
	if err != nil {
		return fmt.Errorf("failed to buffer record %s: %w", record.Event.ID, err)
	}

	stats := buf.Stats()
	s.report(stream, stats)
	if s.cfg.Policy.ShouldRotate(stats) {
		return s.flush(ctx, stream, buf)
	}
	return nil
}

// Flush writes every non-empty buffer of the shard.
func (s *Strategy) Flush(ctx context.Context) error {
	return s.flushWhere(ctx, func(stats event.FileStats) bool { return stats.RecordCount > 0 })
}

func (s *Strategy) flushWhere(ctx context.Context, due func(event.FileStats) bool) error {
	var errs []error
	for _, buf := range s.buffers.Buffers() {
		if !due(buf.Stats()) {
			continue
		}
		if err := s.flush(ctx, buf.Stream(), buf); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Strategy) flush(ctx context.Context, stream event.StreamID, buf buffer.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := buf.Drain()
	if len(records) == 0 {
		return nil
	}

	first := records[0]
	specVersion := ""
	if first.Event != nil {
		specVersion = first.Event.SpecVersion
	}
	path := s.cfg.Router.Route(stream, first.GetEventTimeUnix(), specVersion)

	writeCtx := ctx
	if s.cfg.WriteTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, s.cfg.WriteTimeout)
		defer cancel()
	}

	size, err := s.cfg.Writer.Write(writeCtx, records, path, s.cfg.Format)
	if err != nil {
		restored := 0
		if apperrors.IsRetryable(err) {
			restored = s.restore(buf, records)
		}
		s.logger.Error("archive write failed",
			"stream", stream.String(),
			"path", path,
			"records", len(records),
			"restored", restored,
			"error", err,
		)
		s.report(stream, buf.Stats())
		return fmt.Errorf("failed to archive stream %s: %w", stream, err)
	}

	s.logger.Debug("archived stream",
		"stream", stream.String(),
		"path", path,
		"records", len(records),
		"bytes", size,
	)
	s.report(stream, buf.Stats())
	return nil
}

// restore re-buffers the records of a failed write so the next flush retries
// them. Records that no longer fit are dropped.
func (s *Strategy) restore(buf buffer.Buffer, records []event.Record) int {
	for i, r := range records {
		if err := buf.Add(r); err != nil {
			return i
		}
	}
	return len(records)
}

func (s *Strategy) report(stream event.StreamID, stats event.FileStats) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SetBufferStats(stream.Plugin, stream.Shard, stats.SizeBytes, stats.RecordCount)
	}
}
