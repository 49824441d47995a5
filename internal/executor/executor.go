// Package executor runs dispatch tasks on a fixed set of background workers.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
)

// QueuePolicy controls what Submit does when workers fall behind.
type QueuePolicy int

const (
	// PolicyUnbounded queues every task; memory grows under sustained overload.
	PolicyUnbounded QueuePolicy = iota
	// PolicyBlock makes Submit wait for queue space.
	PolicyBlock
	// PolicyDrop makes Submit fail with ErrRejected when the queue is full.
	PolicyDrop
)

func (p QueuePolicy) String() string {
	switch p {
	case PolicyUnbounded:
		return "unbounded"
	case PolicyBlock:
		return "block"
	case PolicyDrop:
		return "drop"
	default:
		return fmt.Sprintf("QueuePolicy(%d)", int(p))
	}
}

// ParseQueuePolicy parses a policy name. The empty string selects PolicyUnbounded.
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unbounded":
		return PolicyUnbounded, nil
	case "block":
		return PolicyBlock, nil
	case "drop":
		return PolicyDrop, nil
	default:
		return PolicyUnbounded, &apperrors.InvalidConfigError{
			Field:  "queue_policy",
			Value:  s,
			Reason: "must be one of unbounded, block, drop",
		}
	}
}

// Config holds executor settings.
type Config struct {
	Name          string
	Workers       int // 0 selects runtime.NumCPU()
	Policy        QueuePolicy
	QueueCapacity int // required for PolicyBlock and PolicyDrop
	TaskTimeout   time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return &apperrors.InvalidConfigError{Field: "workers", Value: c.Workers, Reason: "must not be negative"}
	}
	if c.Policy != PolicyUnbounded && c.QueueCapacity <= 0 {
		return &apperrors.InvalidConfigError{
			Field:  "queue_capacity",
			Value:  c.QueueCapacity,
			Reason: fmt.Sprintf("must be positive for %s policy", c.Policy),
		}
	}
	if c.TaskTimeout < 0 {
		return &apperrors.InvalidConfigError{Field: "task_timeout", Value: c.TaskTimeout, Reason: "must not be negative"}
	}
	return nil
}

// Stats is a point-in-time view of an executor.
type Stats struct {
	Name        string `json:"name"`
	Workers     int    `json:"workers"`
	Policy      string `json:"policy"`
	QueueLength int    `json:"queue_length"`
	Submitted   uint64 `json:"submitted"`
	Rejected    uint64 `json:"rejected"`
	Completed   uint64 `json:"completed"`
	Panicked    uint64 `json:"panicked"`
}

// Executor is a worker pool fed by a FIFO task queue.
type Executor struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	tasks    *queue.Queue
	closed   bool
	released bool

	workers conc.WaitGroup
	done    chan struct{}

	depth     atomic.Int64
	submitted atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
}

// New validates cfg and starts the workers.
func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		cfg:    cfg,
		logger: logger.With("executor", cfg.Name),
		tasks:  queue.New(),
		done:   make(chan struct{}),
	}
	e.notEmpty = sync.NewCond(&e.mu)
	e.notFull = sync.NewCond(&e.mu)

	for i := 0; i < cfg.Workers; i++ {
		e.workers.Go(e.work)
	}
	go func() {
		e.workers.Wait()
		close(e.done)
	}()

	return e, nil
}

// Submit enqueues task according to the queue policy.
// It returns ErrClosed after Close and ErrRejected when a drop policy queue is full.
func (e *Executor) Submit(task dispatch.Task) error {
	if task == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.rejected.Add(1)
		return apperrors.ErrClosed
	}

	switch e.cfg.Policy {
	case PolicyDrop:
		if e.tasks.Length() >= e.cfg.QueueCapacity {
			e.rejected.Add(1)
			return apperrors.ErrRejected
		}
	case PolicyBlock:
		for e.tasks.Length() >= e.cfg.QueueCapacity && !e.closed && !e.released {
			e.notFull.Wait()
		}
		if e.closed {
			e.rejected.Add(1)
			return apperrors.ErrClosed
		}
		if e.tasks.Length() >= e.cfg.QueueCapacity {
			e.rejected.Add(1)
			return apperrors.ErrRejected
		}
	}

	e.tasks.Add(task)
	e.depth.Store(int64(e.tasks.Length()))
	e.submitted.Add(1)
	e.notEmpty.Signal()
	return nil
}

func (e *Executor) work() {
	for {
		task, ok := e.take()
		if !ok {
			return
		}
		e.run(task)
	}
}

func (e *Executor) take() (dispatch.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for e.tasks.Length() == 0 {
		if e.closed {
			return nil, false
		}
		e.notEmpty.Wait()
	}

	task := e.tasks.Remove().(dispatch.Task)
	e.depth.Store(int64(e.tasks.Length()))
	e.notFull.Signal()
	return task, true
}

func (e *Executor) run(task dispatch.Task) {
	ctx := context.Background()
	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
	}

	var pc panics.Catcher
	pc.Try(func() { task(ctx) })
	if r := pc.Recovered(); r != nil {
		e.panicked.Add(1)
		e.logger.Error("task panicked",
			"panic", fmt.Sprint(r.Value),
			"stack", string(r.Stack))
	}
	e.completed.Add(1)
}

// Release stops a block policy from waiting for queue space: from now on a
// Submit against a full queue fails with ErrRejected, like the drop policy.
// Blocked submitters wake up and fail the same way.
func (e *Executor) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.released = true
	e.notFull.Broadcast()
}

// Close stops accepting tasks. Queued tasks still run; Close does not wait for them.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	e.notEmpty.Broadcast()
	e.notFull.Broadcast()
}

// Shutdown closes the executor and waits until queued tasks finish or ctx expires.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.Close()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueLength returns the number of tasks waiting for a worker.
func (e *Executor) QueueLength() int {
	return int(e.depth.Load())
}

// Stats returns counters for reporting.
func (e *Executor) Stats() Stats {
	return Stats{
		Name:        e.cfg.Name,
		Workers:     e.cfg.Workers,
		Policy:      e.cfg.Policy.String(),
		QueueLength: e.QueueLength(),
		Submitted:   e.submitted.Load(),
		Rejected:    e.rejected.Load(),
		Completed:   e.completed.Load(),
		Panicked:    e.panicked.Load(),
	}
}
