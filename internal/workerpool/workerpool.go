// Package workerpool drains a ring buffer with a fixed group of consumer units.
//
// Units share one work sequence, so every published event is taken by exactly one
// unit. Each unit advertises its progress through a gating sequence that keeps
// producers from overwriting slots it has not read yet.
package workerpool

import (
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/internal/ringbuffer"
)

// Handler processes one event taken from the ring by a unit.
type Handler[T any] func(seq int64, payload T) error

// FaultHandler is told about every error returned or panic raised by a Handler.
type FaultHandler func(unit int, seq int64, err error)

// Config describes a group.
type Config[T any] struct {
	Units      int
	NewHandler func(unit int) Handler[T]
	OnFault    FaultHandler
}

type unit[T any] struct {
	id      int
	seq     *ringbuffer.Sequence
	handle  Handler[T]
	handled atomic.Uint64
}

// Group is a set of units consuming from one ring.
type Group[T any] struct {
	ring    *ringbuffer.RingBuffer[T]
	work    *ringbuffer.Sequence
	units   []*unit[T]
	onFault FaultHandler

	wg      conc.WaitGroup
	started atomic.Bool
	faults  atomic.Uint64
}

// New creates cfg.Units units and registers their sequences as gating sequences on ring.
func New[T any](ring *ringbuffer.RingBuffer[T], cfg Config[T]) (*Group[T], error) {
	if cfg.Units <= 0 {
		return nil, &apperrors.InvalidConfigError{Field: "consumer_count", Value: cfg.Units, Reason: "must be positive"}
	}
	if cfg.NewHandler == nil {
		return nil, &apperrors.InvalidConfigError{Field: "handler", Value: nil, Reason: "must not be nil"}
	}

	g := &Group[T]{
		ring:    ring,
		work:    ringbuffer.NewSequence(),
		units:   make([]*unit[T], cfg.Units),
		onFault: cfg.OnFault,
	}

	seqs := make([]*ringbuffer.Sequence, cfg.Units)
	for i := range g.units {
		g.units[i] = &unit[T]{
			id:     i,
			seq:    ringbuffer.NewSequence(),
			handle: cfg.NewHandler(i),
		}
		seqs[i] = g.units[i].seq
	}
	ring.AddGatingSequences(seqs...)

	return g, nil
}

// Start launches one goroutine per unit.
func (g *Group[T]) Start() error {
	if !g.started.CompareAndSwap(false, true) {
		return apperrors.ErrAlreadyStarted
	}
	for _, u := range g.units {
		u := u
		g.wg.Go(func() { g.run(u) })
	}
	return nil
}

// Stop closes the ring and waits for every unit to drain published events and exit.
func (g *Group[T]) Stop() {
	g.ring.Close()
	g.Wait()
}

// Wait blocks until every unit exited.
func (g *Group[T]) Wait() {
	g.wg.Wait()
}

func (g *Group[T]) run(u *unit[T]) {
	for {
		next := g.work.IncrementAndGet()
		u.seq.Set(next - 1)
		g.ring.Signal()

		if _, err := g.ring.WaitFor(next); err != nil {
			return
		}

		slot := g.ring.Slot(next)
		payload := slot.Payload
		var zero T
		slot.Payload = zero

		g.handle(u, next, payload)
	}
}

func (g *Group[T]) handle(u *unit[T], seq int64, payload T) {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = u.handle(seq, payload) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	u.handled.Add(1)

	if err != nil {
		g.faults.Add(1)
		if g.onFault != nil {
			g.onFault(u.id, seq, err)
		}
	}
}

// Units returns the number of units.
func (g *Group[T]) Units() int {
	return len(g.units)
}

// Handled returns how many events each unit took, indexed by unit id.
func (g *Group[T]) Handled() []uint64 {
	out := make([]uint64, len(g.units))
	for i, u := range g.units {
		out[i] = u.handled.Load()
	}
	return out
}

// Faults returns the number of hand-off errors and panics observed.
func (g *Group[T]) Faults() uint64 {
	return g.faults.Load()
}
