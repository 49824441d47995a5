// Package pipeline wires a ring buffer, a consumer group and a dispatch executor
// into a publish-many, consume-many event pipeline.
//
// Producers publish through a Provider. Consumer units drain the ring and hand every
// event to the executor, which invokes the unit's strategy. Strategy errors, panics
// and rejected submissions are logged, counted and dropped: delivery is best effort
// and at most once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/internal/executor"
	"github.com/jittakal/gatewaypipe/internal/ringbuffer"
	"github.com/jittakal/gatewaypipe/internal/workerpool"
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
)

// Fault stages reported in DispatchError.Stage and metrics.
const (
	StageHandoff = "handoff"
	StageSubmit  = "submit"
	StageHandle  = "handle"
)

// State is the lifecycle state of a Manager.
type State int32

const (
	StateNew State = iota
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MetricsCollector defines the interface for collecting pipeline metrics.
type MetricsCollector interface {
	IncPublished(pipeline string)
	IncDispatched(pipeline string)
	IncDropped(pipeline string, reason string)
	IncFaults(pipeline string, stage string)
	ObserveHandleDuration(pipeline string, duration float64)
	SetRemainingCapacity(pipeline string, slots float64)
	SetExecutorQueueDepth(pipeline string, depth float64)
}

type queueLengther interface {
	QueueLength() int
}

// Manager owns the lifecycle of one pipeline. NEW -> STARTED -> STOPPED; STOPPED is terminal.
type Manager[T any] struct {
	logger  *slog.Logger
	metrics MetricsCollector

	mu    sync.Mutex
	state atomic.Int32
	cfg   Config[T]

	ring     atomic.Pointer[ringbuffer.RingBuffer[T]]
	group    *workerpool.Group[T]
	exec     dispatch.Executor
	owned    *executor.Executor
	provider *Provider[T]

	published  atomic.Uint64
	dispatched atomic.Uint64
	dropped    atomic.Uint64
	faults     atomic.Uint64
}

// NewManager creates a manager in the NEW state. metrics may be nil.
func NewManager[T any](logger *slog.Logger, metrics MetricsCollector) *Manager[T] {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager[T]{
		logger:  logger,
		metrics: metrics,
	}
	m.provider = &Provider[T]{m: m}
	return m
}

// Provider returns the publishing handle. It may be taken before Start;
// publishing through it fails with ErrNotStarted until the pipeline runs.
func (m *Manager[T]) Provider() *Provider[T] {
	return m.provider
}

// State returns the current lifecycle state.
func (m *Manager[T]) State() State {
	return State(m.state.Load())
}

// Name returns the configured pipeline name, empty before Start.
func (m *Manager[T]) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.Name
}

// Start allocates the ring, starts the consumer units and returns the Provider.
// A manager starts at most once; any later call returns ErrAlreadyStarted.
func (m *Manager[T]) Start(cfg Config[T]) (*Provider[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != StateNew {
		return nil, apperrors.ErrAlreadyStarted
	}

	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	ring, err := ringbuffer.New[T](cfg.BufferSize, cfg.WaitStrategy)
	if err != nil {
		return nil, err
	}

	exec := cfg.Executor
	var owned *executor.Executor
	if exec == nil {
		owned, err = executor.New(cfg.ExecutorConfig, m.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create dispatch executor: %w", err)
		}
		exec = owned
	}

	m.cfg = cfg
	m.exec = exec

	group, err := workerpool.New(ring, workerpool.Config[T]{
		Units:      cfg.ConsumerCount,
		NewHandler: m.newHandler,
		OnFault:    m.onFault,
	})
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		return nil, err
	}

	m.owned = owned
	m.group = group
	m.ring.Store(ring)

	if err := group.Start(); err != nil {
		return nil, err
	}
	m.state.Store(int32(StateStarted))

	m.logger.Info("pipeline started",
		"pipeline", cfg.Name,
		"buffer_size", cfg.BufferSize,
		"consumer_count", cfg.ConsumerCount,
		"strategy", cfg.Factory.Name())

	return m.provider, nil
}

// Stop closes the ring, waits for consumer units to drain published events and exit,
// and closes an owned executor without waiting for queued tasks. While units drain,
// an owned block-policy executor no longer waits for queue space: events that find
// the queue full are dropped. A second call returns ErrAlreadyStopped.
func (m *Manager[T]) Stop() error {
	m.mu.Lock()
	switch m.State() {
	case StateNew:
		m.mu.Unlock()
		return apperrors.ErrNotStarted
	case StateStopped:
		m.mu.Unlock()
		return apperrors.ErrAlreadyStopped
	}

	m.state.Store(int32(StateStopped))
	m.ring.Store(nil)
	group, owned, name := m.group, m.owned, m.cfg.Name
	m.mu.Unlock()

	if owned != nil {
		owned.Release()
	}
	group.Stop()
	if owned != nil {
		owned.Close()
	}

	m.logger.Info("pipeline stopped",
		"pipeline", name,
		"published", m.published.Load(),
		"dispatched", m.dispatched.Load(),
		"dropped", m.dropped.Load(),
		"faults", m.faults.Load())

	return nil
}

// Shutdown stops the pipeline and, when it owns its executor, waits for queued
// tasks to finish or ctx to expire.
func (m *Manager[T]) Shutdown(ctx context.Context) error {
	if err := m.Stop(); err != nil {
		return err
	}
	if m.owned != nil {
		return m.owned.Shutdown(ctx)
	}
	return nil
}

func (m *Manager[T]) publish(payload T) error {
	ring := m.ring.Load()
	if ring == nil {
		if m.State() == StateNew {
			return apperrors.ErrNotStarted
		}
		return apperrors.ErrClosed
	}

	if err := ring.PublishEvent(payload); err != nil {
		return err
	}

	m.published.Add(1)
	if m.metrics != nil {
		m.metrics.IncPublished(m.cfg.Name)
	}
	return nil
}

// newHandler builds the hand-off of one consumer unit. Each unit owns its strategy.
func (m *Manager[T]) newHandler(unit int) workerpool.Handler[T] {
	strategy := m.cfg.Factory.Create()

	return func(seq int64, payload T) error {
		task := func(ctx context.Context) {
			m.invoke(ctx, strategy, seq, payload)
		}

		if err := m.exec.Submit(task); err != nil {
			m.dropped.Add(1)
			if m.metrics != nil {
				m.metrics.IncDropped(m.cfg.Name, apperrors.KindOf(err).String())
			}
			return &apperrors.DispatchError{Pipeline: m.cfg.Name, Stage: StageSubmit, Sequence: seq, Err: err}
		}

		m.dispatched.Add(1)
		if m.metrics != nil {
			m.metrics.IncDispatched(m.cfg.Name)
			if ring := m.ring.Load(); ring != nil {
				m.metrics.SetRemainingCapacity(m.cfg.Name, float64(ring.RemainingCapacity()))
			}
			if q, ok := m.exec.(queueLengther); ok {
				m.metrics.SetExecutorQueueDepth(m.cfg.Name, float64(q.QueueLength()))
			}
		}
		return nil
	}
}

func (m *Manager[T]) invoke(ctx context.Context, strategy dispatch.Strategy[T], seq int64, payload T) {
	start := time.Now()

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = strategy.Handle(ctx, payload) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	if m.metrics != nil {
		m.metrics.ObserveHandleDuration(m.cfg.Name, time.Since(start).Seconds())
	}
	if err != nil {
		m.onFault(-1, seq, &apperrors.DispatchError{Pipeline: m.cfg.Name, Stage: StageHandle, Sequence: seq, Err: err})
	}
}

// onFault is the ignore-and-continue policy: log, count, drop.
func (m *Manager[T]) onFault(unit int, seq int64, err error) {
	stage := StageHandoff
	var dispatchErr *apperrors.DispatchError
	if errors.As(err, &dispatchErr) {
		stage = dispatchErr.Stage
	}

	m.faults.Add(1)
	if m.metrics != nil {
		m.metrics.IncFaults(m.cfg.Name, stage)
	}

	attrs := []any{
		"pipeline", m.cfg.Name,
		"stage", stage,
		"sequence", seq,
		"error", err,
	}
	if unit >= 0 {
		attrs = append(attrs, "unit", unit)
	}
	if stage == StageHandle {
		m.logger.Warn("strategy failed, event dropped", attrs...)
		return
	}
	m.logger.Error("dispatch hand-off failed, event dropped", attrs...)
}

// Stats returns a snapshot for health and admin reporting.
func (m *Manager[T]) Stats() Stats {
	m.mu.Lock()
	cfg := m.cfg
	exec := m.exec
	m.mu.Unlock()

	stats := Stats{
		Name:          cfg.Name,
		State:         m.State().String(),
		BufferSize:    cfg.BufferSize,
		ConsumerCount: cfg.ConsumerCount,
		Published:     m.published.Load(),
		Dispatched:    m.dispatched.Load(),
		Dropped:       m.dropped.Load(),
		Faults:        m.faults.Load(),
	}
	if cfg.Factory != nil {
		stats.Strategy = cfg.Factory.Name()
	}
	if ring := m.ring.Load(); ring != nil {
		stats.RemainingCapacity = ring.RemainingCapacity()
	}
	if e, ok := exec.(interface{ Stats() executor.Stats }); ok {
		es := e.Stats()
		stats.Executor = &es
	}
	return stats
}
