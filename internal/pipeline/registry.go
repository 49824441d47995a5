package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jittakal/gatewaypipe/internal/executor"
)

// Stats is a point-in-time view of a pipeline.
type Stats struct {
	Name              string          `json:"name"`
	State             string          `json:"state"`
	Strategy          string          `json:"strategy"`
	BufferSize        int             `json:"buffer_size"`
	RemainingCapacity int64           `json:"remaining_capacity"`
	ConsumerCount     int             `json:"consumer_count"`
	Published         uint64          `json:"published"`
	Dispatched        uint64          `json:"dispatched"`
	Dropped           uint64          `json:"dropped"`
	Faults            uint64          `json:"faults"`
	Executor          *executor.Stats `json:"executor,omitempty"`
}

// Handle is the type-erased view of a Manager kept by a Registry.
type Handle interface {
	Name() string
	State() State
	Stats() Stats
	Shutdown(ctx context.Context) error
}

// Registry tracks the pipelines of a process for health and admin reporting.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pipelines: make(map[string]Handle),
	}
}

// Register adds a started pipeline. Names must be unique.
func (r *Registry) Register(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.Name()
	if _, exists := r.pipelines[name]; exists {
		return fmt.Errorf("pipeline %q already registered", name)
	}
	r.pipelines[name] = h
	return nil
}

// Get returns the pipeline registered under name.
func (r *Registry) Get(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.pipelines[name]
	return h, ok
}

// Stats returns the stats of every pipeline ordered by name.
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.pipelines))
	for _, h := range r.pipelines {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	stats := make([]Stats, 0, len(handles))
	for _, h := range handles {
		stats = append(stats, h.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Running reports whether at least one pipeline is registered and every one is started.
func (r *Registry) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.pipelines) == 0 {
		return false
	}
	for _, h := range r.pipelines {
		if h.State() != StateStarted {
			return false
		}
	}
	return true
}

// ShutdownAll shuts every started pipeline down and returns the first error.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.pipelines))
	for _, h := range r.pipelines {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	var firstErr error
	for _, h := range handles {
		if h.State() != StateStarted {
			continue
		}
		if err := h.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to shut down pipeline %s: %w", h.Name(), err)
		}
	}
	return firstErr
}
