package rpcref

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/jittakal/gatewaypipe/pkg/dispatch"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// DefaultCacheSize bounds a Cache created with a non-positive size.
const DefaultCacheSize = 1000

// Eviction reasons reported to MetricsCollector.
const (
	ReasonCapacity    = "capacity"
	ReasonInvalidated = "invalidated"
	ReasonReplaced    = "replaced"
)

// MetricsCollector receives cache observations.
type MetricsCollector interface {
	SetRPCReferences(n int)
	IncRPCReferenceEvictions(reason string)
	IncRPCReferenceBuilds(status string)
}

// Entry is a cached reference with its live handle.
type Entry struct {
	Reference Reference
	Handle    Handle
}

// Cache keeps the handles of recently used references, keyed by path.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *Entry]
	dialer  Dialer
	logger  *slog.Logger
	metrics MetricsCollector

	// builds collapses concurrent dials of one path.
	builds singleflight.Group

	// reason names the removal in progress; guarded by mu.
	reason string
}

// NewCache creates a cache of at most size references. metrics may be nil.
func NewCache(size int, dialer Dialer, logger *slog.Logger, metrics MetricsCollector) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if dialer == nil {
		return nil, fmt.Errorf("rpcref: dialer is required")
	}

	c := &Cache{
		dialer:  dialer,
		logger:  logger,
		metrics: metrics,
		reason:  ReasonCapacity,
	}
	entries, err := lru.NewWithEvict[string, *Entry](size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

func (c *Cache) onEvict(path string, entry *Entry) {
	c.closeEntry(path, entry, c.reason)
}

func (c *Cache) closeEntry(path string, entry *Entry, reason string) {
	if entry == nil || entry.Handle == nil {
		return
	}
	if err := entry.Handle.Close(); err != nil {
		c.logger.Warn("failed to close rpc reference", "path", path, "reason", reason, "error", err)
	}
	if c.metrics != nil {
		c.metrics.IncRPCReferenceEvictions(reason)
	}
}

func (c *Cache) report() {
	if c.metrics != nil {
		c.metrics.SetRPCReferences(c.entries.Len())
	}
}

// Get returns the entry cached for path.
func (c *Cache) Get(path string) (*Entry, bool) {
	return c.entries.Get(path)
}

// InitRef returns the cached entry of meta.Path or builds a new one.
// Concurrent calls for one path share a single dial.
func (c *Cache) InitRef(ctx context.Context, meta event.ServiceMetadata) (*Entry, error) {
	if entry, ok := c.entries.Get(meta.Path); ok {
		return entry, nil
	}
	return c.flight(meta.Path, func() (*Entry, error) {
		if entry, ok := c.entries.Get(meta.Path); ok {
			return entry, nil
		}
		return c.build(ctx, meta)
	})
}

// Build dials a fresh handle for meta and caches it, closing the handle it
// replaces. A Build that overlaps another build of the same path returns
// that build's entry instead of dialing again.
func (c *Cache) Build(ctx context.Context, meta event.ServiceMetadata) (*Entry, error) {
	return c.flight(meta.Path, func() (*Entry, error) {
		return c.build(ctx, meta)
	})
}

func (c *Cache) flight(path string, fn func() (*Entry, error)) (*Entry, error) {
	v, err, _ := c.builds.Do(path, func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (c *Cache) build(ctx context.Context, meta event.ServiceMetadata) (*Entry, error) {
	ref, err := NewReference(meta)
	if err != nil {
		c.incBuilds("invalid")
		return nil, err
	}

	handle, err := c.dialer.Dial(ctx, ref)
	if err != nil {
		c.incBuilds("failure")
		c.logger.Error("failed to build rpc reference", "path", ref.Path, "service", ref.Service, "error", err)
		return nil, fmt.Errorf("failed to build reference %s: %w", ref.Path, err)
	}
	entry := &Entry{Reference: ref, Handle: handle}

	c.mu.Lock()
	old, replaced := c.entries.Peek(ref.Path)
	c.reason = ReasonCapacity
	c.entries.Add(ref.Path, entry)
	c.mu.Unlock()

	if replaced && old != entry {
		c.closeEntry(ref.Path, old, ReasonReplaced)
	}
	c.incBuilds("success")
	c.report()
	c.logger.Info("rpc reference built", "path", ref.Path, "service", ref.Service, "rpc_type", ref.RPCType)
	return entry, nil
}

func (c *Cache) incBuilds(status string) {
	if c.metrics != nil {
		c.metrics.IncRPCReferenceBuilds(status)
	}
}

// Invalidate removes and closes the reference of path.
func (c *Cache) Invalidate(path string) bool {
	c.mu.Lock()
	c.reason = ReasonInvalidated
	removed := c.entries.Remove(path)
	c.reason = ReasonCapacity
	c.mu.Unlock()

	c.report()
	return removed
}

// InvalidateAll removes and closes every reference.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.reason = ReasonInvalidated
	c.entries.Purge()
	c.reason = ReasonCapacity
	c.mu.Unlock()

	c.report()
}

// Len returns the number of cached references.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// WarmupFactory returns the strategy factory of the rpc pipeline. Enabled
// metadata warms its reference; disabled metadata invalidates it.
func (c *Cache) WarmupFactory() dispatch.StrategyFactory[event.ServiceMetadata] {
	return dispatch.SharedFactory[event.ServiceMetadata]("rpc",
		dispatch.StrategyFunc[event.ServiceMetadata](func(ctx context.Context, meta event.ServiceMetadata) error {
			if !meta.Enabled {
				c.Invalidate(meta.Path)
				return nil
			}
			_, err := c.InitRef(ctx, meta)
			return err
		}))
}
