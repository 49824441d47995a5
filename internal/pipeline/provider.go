package pipeline

import (
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
)

// Provider is the publishing handle of a pipeline. It is safe for concurrent use.
type Provider[T any] struct {
	m *Manager[T]
}

// Publish hands payload to the pipeline. It blocks while the ring is full and
// returns ErrNotStarted before Start and ErrClosed after Stop.
func (p *Provider[T]) Publish(payload T) error {
	return p.m.publish(payload)
}

var _ dispatch.Publisher[struct{}] = (*Provider[struct{}])(nil)
