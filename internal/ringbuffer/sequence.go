package ringbuffer

import (
	"sync/atomic"
)

// InitialSequence is the value of a sequence before anything was claimed or processed.
const InitialSequence int64 = -1

const cacheLinePadding = 64

// Sequence is a monotonically advancing position in the ring.
// Padding keeps hot counters owned by different goroutines on separate cache lines.
type Sequence struct {
	_     [cacheLinePadding]byte
	value atomic.Int64
	_     [cacheLinePadding - 8]byte
}

// NewSequence returns a sequence set to InitialSequence.
func NewSequence() *Sequence {
	s := &Sequence{}
	s.value.Store(InitialSequence)
	return s
}

// Get atomically loads the sequence.
func (s *Sequence) Get() int64 {
	return s.value.Load()
}

// Set atomically stores v.
func (s *Sequence) Set(v int64) {
	s.value.Store(v)
}

// IncrementAndGet atomically adds one and returns the new value.
func (s *Sequence) IncrementAndGet() int64 {
	return s.value.Add(1)
}

// minimumSequence returns the smallest of seqs, or fallback when seqs is empty.
func minimumSequence(seqs []*Sequence, fallback int64) int64 {
	if len(seqs) == 0 {
		return fallback
	}
	m := seqs[0].Get()
	for _, s := range seqs[1:] {
		if v := s.Get(); v < m {
			m = v
		}
	}
	return m
}
