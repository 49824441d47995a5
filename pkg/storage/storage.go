// Package storage defines interfaces for event storage operations.
//
// This package provides abstractions for archiving audit records to object
// storage backends (S3, Azure Blob, Google Cloud Storage, local filesystem).
package storage

import (
	"context"

	"github.com/jittakal/gatewaypipe/pkg/event"
)

// Writer writes event records to storage.
type Writer interface {
	// Write writes records to storage at the specified path.
	// Returns the number of bytes written.
	Write(ctx context.Context, records []event.Record, path string, format event.FileFormat) (int64, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Router determines storage paths for archive streams.
type Router interface {
	// Route returns the storage directory for a stream at a given time.
	// timestamp is the event time in Unix seconds; specVersion is the CloudEvents
	// spec version used for path versioning, empty selects the default.
	Route(stream event.StreamID, timestamp int64, specVersion string) string
}

// RotationPolicy determines when to rotate (flush) buffered events to storage.
type RotationPolicy interface {
	// ShouldRotate returns true if the buffer should be flushed based on stats.
	ShouldRotate(stats event.FileStats) bool
}
