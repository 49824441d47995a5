// Package audit defines the interface of audit event sinks.
package audit

import (
	"context"

	"github.com/jittakal/gatewaypipe/pkg/event"
)

// Publisher delivers audit records to an external system.
type Publisher interface {
	// Publish sends one record. It returns ErrPublisherClosed after Close.
	Publish(ctx context.Context, record *event.Record) error

	// Close closes the publisher and releases resources.
	Close() error
}
