// Package ringbuffer provides a bounded, pre-allocated multi-producer ring of event slots.
//
// Producers claim a sequence, write the slot owned by that sequence and publish it.
// Publication is contiguous: a sequence becomes visible to consumers only once every
// lower sequence is visible too. Consumers advertise their progress through gating
// sequences, and a producer never claims a slot a gating consumer has not released.
package ringbuffer

import (
	"sync/atomic"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
)

// Slot holds one payload. Slots are allocated once, at construction, and reused.
type Slot[T any] struct {
	Payload T
}

// RingBuffer is a fixed-capacity ring shared by many producers.
type RingBuffer[T any] struct {
	size  int64
	mask  int64
	slots []Slot[T]

	claimed   *Sequence
	published *Sequence

	gating atomic.Pointer[[]*Sequence]
	wait   WaitStrategy
	closed atomic.Bool
}

// New creates a ring of size slots. size must be a positive power of two.
// A nil wait strategy selects BlockingWaitStrategy.
func New[T any](size int, wait WaitStrategy) (*RingBuffer[T], error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, &apperrors.InvalidConfigError{
			Field:  "buffer_size",
			Value:  size,
			Reason: "must be a positive power of two",
		}
	}
	if wait == nil {
		wait = NewBlockingWaitStrategy()
	}

	r := &RingBuffer[T]{
		size:      int64(size),
		mask:      int64(size - 1),
		slots:     make([]Slot[T], size),
		claimed:   NewSequence(),
		published: NewSequence(),
		wait:      wait,
	}
	empty := make([]*Sequence, 0)
	r.gating.Store(&empty)
	return r, nil
}

// AddGatingSequences registers consumer progress sequences.
// Call it before producers start claiming.
func (r *RingBuffer[T]) AddGatingSequences(seqs ...*Sequence) {
	for {
		current := r.gating.Load()
		next := make([]*Sequence, 0, len(*current)+len(seqs))
		next = append(next, *current...)
		next = append(next, seqs...)
		if r.gating.CompareAndSwap(current, &next) {
			return
		}
	}
}

func (r *RingBuffer[T]) minimumGating() int64 {
	return minimumSequence(*r.gating.Load(), r.published.Get())
}

// Next claims the next sequence, blocking while the ring is full.
// It returns ErrClosed when the ring was closed before or while waiting.
func (r *RingBuffer[T]) Next() (int64, error) {
	if r.closed.Load() {
		return InitialSequence, apperrors.ErrClosed
	}

	seq := r.claimed.IncrementAndGet()
	wrapPoint := seq - r.size
	if wrapPoint > r.minimumGating() {
		r.wait.WaitUntil(func() bool {
			return r.closed.Load() || wrapPoint <= r.minimumGating()
		})
		if wrapPoint > r.minimumGating() {
			return seq, apperrors.ErrClosed
		}
	}
	return seq, nil
}

// Slot returns the slot owned by seq.
func (r *RingBuffer[T]) Slot(seq int64) *Slot[T] {
	return &r.slots[seq&r.mask]
}

// Publish makes seq visible to consumers once seq-1 is visible.
// A sequence still unpublished when the ring closes is abandoned with ErrClosed.
// ErrClosed is also returned when the ring closed while seq became visible:
// consumers may already have exited, so delivery is not guaranteed.
func (r *RingBuffer[T]) Publish(seq int64) error {
	prev := seq - 1
	r.wait.WaitUntil(func() bool {
		return r.closed.Load() || r.published.Get() == prev
	})
	if r.closed.Load() {
		return apperrors.ErrClosed
	}

	r.published.Set(seq)
	r.wait.SignalAll()
	if r.closed.Load() {
		return apperrors.ErrClosed
	}
	return nil
}

// PublishEvent claims a slot, stores payload in it and publishes it.
func (r *RingBuffer[T]) PublishEvent(payload T) error {
	seq, err := r.Next()
	if err != nil {
		return err
	}
	r.Slot(seq).Payload = payload
	return r.Publish(seq)
}

// WaitFor blocks until seq is published and returns the highest contiguous
// published sequence. Once the ring is closed it returns ErrClosed for
// sequences that were never published.
func (r *RingBuffer[T]) WaitFor(seq int64) (int64, error) {
	if available := r.published.Get(); available >= seq {
		return available, nil
	}

	r.wait.WaitUntil(func() bool {
		return r.closed.Load() || r.published.Get() >= seq
	})

	available := r.published.Get()
	if available >= seq {
		return available, nil
	}
	return available, apperrors.ErrClosed
}

// Signal wakes waiters after a gating sequence moved.
func (r *RingBuffer[T]) Signal() {
	r.wait.SignalAll()
}

// Cursor returns the highest contiguous published sequence.
func (r *RingBuffer[T]) Cursor() int64 {
	return r.published.Get()
}

// RemainingCapacity returns how many slots can be claimed without blocking.
func (r *RingBuffer[T]) RemainingCapacity() int64 {
	consumed := r.minimumGating()
	produced := r.claimed.Get()
	remaining := r.size - (produced - consumed)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// BufferSize returns the number of slots.
func (r *RingBuffer[T]) BufferSize() int {
	return int(r.size)
}

// Close stops new claims and wakes every waiter. Published slots stay readable.
func (r *RingBuffer[T]) Close() {
	if r.closed.CompareAndSwap(false, true) {
		r.wait.SignalAll()
	}
}

// Closed reports whether Close was called.
func (r *RingBuffer[T]) Closed() bool {
	return r.closed.Load()
}
