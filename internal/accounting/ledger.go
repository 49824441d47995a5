// Package accounting tracks per-key token usage reported by the gateway's
// rate-limiter plugin.
//
// The ledger keeps one token bucket per key in a bounded LRU; the least
// recently charged key is forgotten when the ledger is full.
package accounting

import (
	"context"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/dispatch"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// MetricsCollector receives ledger decisions.
type MetricsCollector interface {
	IncRateLimitDecision(plugin string, allowed bool)
	SetRateLimitTrackedKeys(n int)
}

// Config bounds the ledger.
type Config struct {
	MaxKeys         int
	TokensPerSecond float64
	Burst           int
}

// Tally is the accounting state of one key.
type Tally struct {
	Key     string  `json:"key"`
	Allowed uint64  `json:"allowed"`
	Denied  uint64  `json:"denied"`
	Tokens  float64 `json:"tokens"`
}

type bucket struct {
	limiter *rate.Limiter
	allowed uint64
	denied  uint64
}

// Ledger charges usage against per-key token buckets.
type Ledger struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *bucket]
	limit   rate.Limit
	burst   int
	metrics MetricsCollector
	now     func() time.Time
}

// NewLedger creates a ledger. metrics may be nil.
func NewLedger(cfg Config, metrics MetricsCollector) (*Ledger, error) {
	if cfg.MaxKeys <= 0 {
		return nil, &apperrors.InvalidConfigError{Field: "ratelimit.max_keys", Value: cfg.MaxKeys, Reason: "must be positive"}
	}
	if cfg.TokensPerSecond < 0 || cfg.Burst < 0 {
		return nil, &apperrors.InvalidConfigError{Field: "ratelimit.tokens_per_second", Value: cfg.TokensPerSecond, Reason: "rate and burst must not be negative"}
	}

	buckets, err := lru.New[string, *bucket](cfg.MaxKeys)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		buckets: buckets,
		limit:   rate.Limit(cfg.TokensPerSecond),
		burst:   cfg.Burst,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// Record charges usage.Tokens (at least one) against usage.Key at usage.At
// and reports whether the bucket allowed it.
func (l *Ledger) Record(usage event.RateUsage) bool {
	tokens := usage.Tokens
	if tokens <= 0 {
		tokens = 1
	}
	at := usage.At
	if at.IsZero() {
		at = l.now()
	}

	l.mu.Lock()
	b, ok := l.buckets.Get(usage.Key)
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets.Add(usage.Key, b)
	}
	allowed := b.limiter.AllowN(at, tokens)
	if allowed {
		b.allowed++
	} else {
		b.denied++
	}
	size := l.buckets.Len()
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.IncRateLimitDecision(usage.Plugin, allowed)
		l.metrics.SetRateLimitTrackedKeys(size)
	}
	return allowed
}

func (l *Ledger) tally(key string, b *bucket, now time.Time) Tally {
	return Tally{
		Key:     key,
		Allowed: b.allowed,
		Denied:  b.denied,
		Tokens:  b.limiter.TokensAt(now),
	}
}

// Snapshot returns the tally of key without touching its recency.
func (l *Ledger) Snapshot(key string) (Tally, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets.Peek(key)
	if !ok {
		return Tally{}, false
	}
	return l.tally(key, b, l.now()), true
}

// Tallies returns the tallies of every tracked key ordered by key.
func (l *Ledger) Tallies() []Tally {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	keys := l.buckets.Keys()
	out := make([]Tally, 0, len(keys))
	for _, key := range keys {
		if b, ok := l.buckets.Peek(key); ok {
			out = append(out, l.tally(key, b, now))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of tracked keys.
func (l *Ledger) Len() int {
	return l.buckets.Len()
}

// StrategyFactory returns the strategy factory of the rate-limit pipeline.
// All units share the ledger.
func (l *Ledger) StrategyFactory() dispatch.StrategyFactory[event.RateUsage] {
	return dispatch.SharedFactory[event.RateUsage]("ratelimit",
		dispatch.StrategyFunc[event.RateUsage](func(_ context.Context, usage event.RateUsage) error {
			if usage.Key == "" {
				return &apperrors.ValidationError{Field: "key", Reason: "required field is missing"}
			}
			l.Record(usage)
			return nil
		}))
}
