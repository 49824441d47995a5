package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/jittakal/gatewaypipe/pkg/event"
	"github.com/jittakal/gatewaypipe/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Router         = (*DefaultRouter)(nil)
	_ storage.RotationPolicy = (*CompositePolicy)(nil)
)

// DefaultRouter implements Hive-style partitioning for archive paths.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string
	version  string
}

// NewRouter creates a new storage router. version is used when a record
// carries no CloudEvents spec version.
func NewRouter(protocol, bucket, basePath, version string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
		version:  version,
	}
}

// Route returns the directory for a stream at the given event time:
//
//	protocol://bucket/basePath/plugin/vNN/dt=YYYY-MM-DD/shard=N/
//
// The spec version "1.0" becomes "v10". An empty basePath is omitted.
func (r *DefaultRouter) Route(stream event.StreamID, timestamp int64, specVersion string) string {
	date := time.Unix(timestamp, 0).UTC().Format("2006-01-02")

	version := r.version
	if v := strings.ReplaceAll(specVersion, ".", ""); v != "" {
		version = "v" + v
	}

	segments := make([]string, 0, 6)
	segments = append(segments, r.bucket)
	if r.basePath != "" {
		segments = append(segments, r.basePath)
	}
	segments = append(segments,
		stream.Plugin,
		version,
		"dt="+date,
		fmt.Sprintf("shard=%d", stream.Shard),
	)

	return r.protocol + "://" + strings.Join(segments, "/") + "/"
}

// RotationStrategy decides how the thresholds of a CompositePolicy combine.
type RotationStrategy string

const (
	// StrategyAny rotates when any configured threshold is reached.
	StrategyAny RotationStrategy = "any"
	// StrategyAll rotates only when every configured threshold is reached.
	StrategyAll RotationStrategy = "all"
)

// PolicyConfig configures rotation behavior. Zero thresholds are disabled.
type PolicyConfig struct {
	MaxFileSizeMB      int64
	MaxRecordsPerFile  int
	MaxDurationSeconds int
	Strategy           string
}

// CompositePolicy rotates based on size, record count and buffer age.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRecords   int
	maxDuration  time.Duration
	strategy     RotationStrategy
	now          func() time.Time
}

// NewPolicy creates a new rotation policy.
func NewPolicy(config PolicyConfig) *CompositePolicy {
	strategy := RotationStrategy(config.Strategy)
	if strategy != StrategyAll {
		strategy = StrategyAny
	}
	return &CompositePolicy{
		maxSizeBytes: config.MaxFileSizeMB * 1024 * 1024,
		maxRecords:   config.MaxRecordsPerFile,
		maxDuration:  time.Duration(config.MaxDurationSeconds) * time.Second,
		strategy:     strategy,
		now:          time.Now,
	}
}

// ShouldRotate reports whether a buffer with stats should be flushed.
// An empty buffer never rotates.
func (p *CompositePolicy) ShouldRotate(stats event.FileStats) bool {
	if stats.RecordCount == 0 {
		return false
	}

	var checks []bool
	if p.maxSizeBytes > 0 {
		checks = append(checks, stats.SizeBytes >= p.maxSizeBytes)
	}
	if p.maxRecords > 0 {
		checks = append(checks, stats.RecordCount >= p.maxRecords)
	}
	if p.maxDuration > 0 && !stats.FirstWriteTime.IsZero() {
		checks = append(checks, p.now().Sub(stats.FirstWriteTime) >= p.maxDuration)
	}
	if len(checks) == 0 {
		return false
	}

	for _, hit := range checks {
		if hit && p.strategy == StrategyAny {
			return true
		}
		if !hit && p.strategy == StrategyAll {
			return false
		}
	}
	return p.strategy == StrategyAll
}

// MaxDuration returns the age threshold, zero when disabled.
func (p *CompositePolicy) MaxDuration() time.Duration {
	return p.maxDuration
}
