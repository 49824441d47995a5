package ringbuffer

import (
	"runtime"
	"sync"
	"sync/atomic"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
)

// WaitStrategy decides how producers and consumers wait for a sequence condition.
type WaitStrategy interface {
	// WaitUntil blocks until cond reports true.
	// cond is evaluated repeatedly and must only read atomics.
	WaitUntil(cond func() bool)

	// SignalAll wakes every waiter so it re-evaluates its condition.
	// Callers change the state cond observes before signalling.
	SignalAll()
}

// BlockingWaitStrategy parks waiters on a condition variable.
// It trades wake-up latency for idle CPU, which suits many pipelines sharing a process.
type BlockingWaitStrategy struct {
	mu      sync.Mutex
	cond    *sync.Cond
	waiters atomic.Int32
}

// NewBlockingWaitStrategy creates a condition-variable wait strategy.
func NewBlockingWaitStrategy() *BlockingWaitStrategy {
	w := &BlockingWaitStrategy{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// WaitUntil parks the caller until cond holds.
func (w *BlockingWaitStrategy) WaitUntil(cond func() bool) {
	if cond() {
		return
	}

	w.waiters.Add(1)
	w.mu.Lock()
	for !cond() {
		w.cond.Wait()
	}
	w.mu.Unlock()
	w.waiters.Add(-1)
}

// SignalAll wakes parked waiters. It skips the lock when nobody is parked.
func (w *BlockingWaitStrategy) SignalAll() {
	if w.waiters.Load() == 0 {
		return
	}
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// YieldingWaitStrategy spins with runtime.Gosched between checks.
// Lowest latency, but a waiting goroutine keeps a core busy.
type YieldingWaitStrategy struct{}

// WaitUntil spins until cond holds.
func (YieldingWaitStrategy) WaitUntil(cond func() bool) {
	for !cond() {
		runtime.Gosched()
	}
}

// SignalAll is a no-op; spinning waiters notice changes on their own.
func (YieldingWaitStrategy) SignalAll() {}

// ParseWaitStrategy returns a new wait strategy by name: "blocking" (the
// default, also selected by the empty string) or "yielding".
func ParseWaitStrategy(name string) (WaitStrategy, error) {
	switch name {
	case "", "blocking":
		return NewBlockingWaitStrategy(), nil
	case "yielding":
		return YieldingWaitStrategy{}, nil
	default:
		return nil, &apperrors.InvalidConfigError{
			Field:  "wait_strategy",
			Value:  name,
			Reason: "must be blocking or yielding",
		}
	}
}
