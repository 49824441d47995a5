package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/gatewaypipe/internal/encoder"
	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/event"
	"github.com/jittakal/gatewaypipe/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileWriter implements storage.Writer for local filesystem storage.
// Routed paths are laid out as directories below BasePath.
type FileWriter struct {
	basePath       string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.Mutex
	closed         bool
}

// NewFileWriter creates a new filesystem storage writer.
func NewFileWriter(
	config FileConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	encoderFactory, err := newEncoderFactory(format, compression)
	if err != nil {
		return nil, err
	}

	logger.Info("filesystem writer created",
		"base_path", config.BasePath,
		"format", format,
		"compression", compression,
	)

	return &FileWriter{
		basePath:       config.BasePath,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes records into a new file in the directory named by path.
// A "file://bucket/" prefix on path is ignored.
func (w *FileWriter) Write(ctx context.Context, records []event.Record, path string, format event.FileFormat) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, apperrors.ErrWriterClosed
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to write")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	start := time.Now()

	enc, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		recordError(w.metrics, "file", "encoder_create")
		return 0, fmt.Errorf("failed to create encoder: %w", err)
	}

	rel := objectKey(path, "file", objectName(start, enc.FileExtension()))
	fullPath := filepath.Join(w.basePath, filepath.FromSlash(rel))
	if !strings.HasPrefix(fullPath, filepath.Clean(w.basePath)+string(filepath.Separator)) {
		return 0, &apperrors.StorageError{Operation: "route", Path: path, Err: fmt.Errorf("path escapes base path")}
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		recordError(w.metrics, "file", "mkdir")
		return 0, &apperrors.StorageError{Operation: "create", Path: fullPath, Err: err}
	}

	stats, err := enc.Encode(fullPath, records)
	if err != nil {
		recordError(w.metrics, "file", "encode")
		return 0, &apperrors.StorageError{Operation: "write", Path: fullPath, Err: err}
	}

	duration := time.Since(start)
	w.logger.Info("wrote records to file",
		"path", fullPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)
	recordSuccess(w.metrics, writeReport{records: records, format: format, size: stats.SizeBytes, duration: duration})

	return stats.SizeBytes, nil
}

// Close closes the writer.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		w.logger.Info("closing filesystem writer")
	}
	return nil
}
