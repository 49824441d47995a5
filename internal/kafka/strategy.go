package kafka

import (
	"context"
	"log/slog"

	"github.com/jittakal/gatewaypipe/pkg/audit"
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// AuditStrategy forwards each delivered record to a publisher.
type AuditStrategy struct {
	publisher audit.Publisher
	validator event.Validator
	logger    *slog.Logger
}

// Handle validates and publishes record.
func (s *AuditStrategy) Handle(ctx context.Context, record *event.Record) error {
	if s.validator != nil && record != nil {
		if err := s.validator.Validate(record.Event); err != nil {
			s.logger.Warn("dropping invalid audit event", "error", err)
			return err
		}
	}
	return s.publisher.Publish(ctx, record)
}

// AuditStrategyFactory returns the audit pipeline's strategy factory.
// Every unit shares publisher; validator may be nil.
func AuditStrategyFactory(publisher audit.Publisher, validator event.Validator, logger *slog.Logger) dispatch.StrategyFactory[*event.Record] {
	return dispatch.NewFactory("audit", func() dispatch.Strategy[*event.Record] {
		return &AuditStrategy{publisher: publisher, validator: validator, logger: logger}
	})
}
