package pipeline

import (
	"runtime"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/internal/executor"
	"github.com/jittakal/gatewaypipe/internal/ringbuffer"
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
)

// DefaultBufferSize is the ring size used when Config.BufferSize is zero.
const DefaultBufferSize = 16384

// DefaultConsumerCount returns twice the number of available cores.
func DefaultConsumerCount() int {
	return runtime.NumCPU() << 1
}

// Config describes one pipeline.
type Config[T any] struct {
	// Name identifies the pipeline in logs, metrics and the registry.
	Name string

	// BufferSize is the ring capacity. Zero selects DefaultBufferSize;
	// any other value must be a power of two.
	BufferSize int

	// ConsumerCount is the number of consumer units. Zero selects DefaultConsumerCount.
	ConsumerCount int

	// Factory creates one strategy per consumer unit.
	Factory dispatch.StrategyFactory[T]

	// Executor runs strategy invocations. When nil the manager builds and owns an
	// executor from ExecutorConfig and closes it on Stop.
	Executor dispatch.Executor

	// ExecutorConfig is used only when Executor is nil. Zero workers selects
	// ConsumerCount workers; the queue policy defaults to unbounded.
	ExecutorConfig executor.Config

	// WaitStrategy defaults to a blocking wait.
	WaitStrategy ringbuffer.WaitStrategy
}

// withDefaults returns a copy of c with zero values replaced and validates it.
func (c Config[T]) withDefaults() (Config[T], error) {
	if c.Name == "" {
		return c, &apperrors.InvalidConfigError{Field: "name", Value: c.Name, Reason: "must not be empty"}
	}
	if c.Factory == nil {
		return c, &apperrors.InvalidConfigError{Field: "factory", Value: nil, Reason: "must not be nil"}
	}

	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.BufferSize < 0 || c.BufferSize&(c.BufferSize-1) != 0 {
		return c, &apperrors.InvalidConfigError{Field: "buffer_size", Value: c.BufferSize, Reason: "must be a power of two"}
	}

	if c.ConsumerCount == 0 {
		c.ConsumerCount = DefaultConsumerCount()
	}
	if c.ConsumerCount < 1 {
		return c, &apperrors.InvalidConfigError{Field: "consumer_count", Value: c.ConsumerCount, Reason: "must be at least 1"}
	}

	if c.Executor == nil {
		if c.ExecutorConfig.Name == "" {
			c.ExecutorConfig.Name = c.Name
		}
		if c.ExecutorConfig.Workers == 0 {
			c.ExecutorConfig.Workers = c.ConsumerCount
		}
		if err := c.ExecutorConfig.Validate(); err != nil {
			return c, err
		}
	}

	if c.WaitStrategy == nil {
		c.WaitStrategy = ringbuffer.NewBlockingWaitStrategy()
	}
	return c, nil
}
