// Package dispatch defines the contracts between the event dispatch core and
// the subsystems that publish side work into it or consume from it.
//
// Producers see only a Publisher. Consumer logic is supplied as a
// StrategyFactory; the core asks it for one Strategy per consumer unit and
// hands the actual invocation to an Executor.
package dispatch

import (
	"context"
)

// Strategy handles one delivered payload.
// Handle may run on any executor worker, concurrently with other calls on the
// same instance when the executor has more than one worker.
type Strategy[T any] interface {
	Handle(ctx context.Context, payload T) error
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc[T any] func(ctx context.Context, payload T) error

// Handle calls f(ctx, payload).
func (f StrategyFunc[T]) Handle(ctx context.Context, payload T) error {
	return f(ctx, payload)
}

// StrategyFactory produces one Strategy per consumer unit.
type StrategyFactory[T any] interface {
	// Create returns a new strategy instance. It is called once per unit at start.
	Create() Strategy[T]

	// Name identifies the side work; it names units, logs and metrics.
	Name() string
}

type funcFactory[T any] struct {
	name   string
	create func() Strategy[T]
}

func (f *funcFactory[T]) Create() Strategy[T] { return f.create() }
func (f *funcFactory[T]) Name() string        { return f.name }

// NewFactory returns a StrategyFactory calling create for every unit.
func NewFactory[T any](name string, create func() Strategy[T]) StrategyFactory[T] {
	return &funcFactory[T]{name: name, create: create}
}

// SharedFactory returns a StrategyFactory handing the same strategy to every unit.
// The strategy must be safe for concurrent use.
func SharedFactory[T any](name string, strategy Strategy[T]) StrategyFactory[T] {
	return NewFactory(name, func() Strategy[T] { return strategy })
}

// Task is a unit of background work submitted by a consumer unit.
type Task func(ctx context.Context)

// Executor runs tasks off the consumer units' goroutines.
type Executor interface {
	// Submit schedules task. Depending on the queue policy it may block
	// or fail when the executor is saturated; it never runs task twice.
	Submit(task Task) error
}

// Publisher is the producer-side handle of a running pipeline.
// Implementations are safe for concurrent use.
type Publisher[T any] interface {
	// Publish hands payload to the pipeline. It blocks while the buffer is full.
	Publish(payload T) error
}
