// Package buffer implements in-memory batching of audit records for archiving.
package buffer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/buffer"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ buffer.Buffer  = (*StreamBuffer)(nil)
	_ buffer.Manager = (*Manager)(nil)
)

// StreamBuffer buffers the audit records of one archive stream.
// It enforces size and record count limits and tracks first and last write
// times for rotation decisions.
type StreamBuffer struct {
	stream         event.StreamID
	records        []event.Record
	maxSizeBytes   int64
	maxRecords     int
	currentSize    int64
	firstWriteTime time.Time
	lastWriteTime  time.Time
	mu             sync.RWMutex
}

// New creates a new stream buffer.
func New(stream event.StreamID, maxSizeBytes int64, maxRecords int) *StreamBuffer {
	return &StreamBuffer{
		stream:       stream,
		records:      make([]event.Record, 0, maxRecords),
		maxSizeBytes: maxSizeBytes,
		maxRecords:   maxRecords,
	}
}

// Stream returns the stream this buffer belongs to.
func (b *StreamBuffer) Stream() event.StreamID {
	return b.stream
}

// Add adds a record to the buffer.
func (b *StreamBuffer) Add(record event.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	recordSize := int64(estimateSize(record))

	if len(b.records) >= b.maxRecords {
		return fmt.Errorf("%w: max records (%d) reached", errors.ErrBufferFull, b.maxRecords)
	}

	// An empty buffer accepts one oversized record so it can never wedge.
	if b.maxSizeBytes > 0 && len(b.records) > 0 && b.currentSize+recordSize > b.maxSizeBytes {
		return fmt.Errorf("%w: max size (%d bytes) would be exceeded", errors.ErrBufferFull, b.maxSizeBytes)
	}

	b.records = append(b.records, record)
	b.currentSize += recordSize

	now := time.Now()
	if b.firstWriteTime.IsZero() {
		b.firstWriteTime = now
	}
	b.lastWriteTime = now

	return nil
}

// Drain removes and returns all records from the buffer.
// The returned slice is owned by the caller.
func (b *StreamBuffer) Drain() []event.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.records
	b.reset()
	return records
}

// Stats returns current buffer statistics.
func (b *StreamBuffer) Stats() event.FileStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return event.FileStats{
		RecordCount:    len(b.records),
		SizeBytes:      b.currentSize,
		FirstWriteTime: b.firstWriteTime,
		LastWriteTime:  b.lastWriteTime,
	}
}

// IsEmpty returns true if the buffer is empty.
func (b *StreamBuffer) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records) == 0
}

// Reset clears the buffer and resets all statistics.
func (b *StreamBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

func (b *StreamBuffer) reset() {
	b.records = make([]event.Record, 0, b.maxRecords)
	b.currentSize = 0
	b.firstWriteTime = time.Time{}
	b.lastWriteTime = time.Time{}
}

// estimateSize estimates the size of a record in bytes.
func estimateSize(record event.Record) int {
	size := 0

	if record.Event != nil {
		size += len(record.Event.ID)
		size += len(record.Event.Source)
		size += len(record.Event.SpecVersion)
		size += len(record.Event.Type)

		if record.Event.DataContentType != nil {
			size += len(*record.Event.DataContentType)
		}
		if record.Event.DataSchema != nil {
			size += len(*record.Event.DataSchema)
		}
		if record.Event.Subject != nil {
			size += len(*record.Event.Subject)
		}
		size += len(record.Event.Data)
	}

	size += len(record.Gateway.Plugin)
	size += len(record.Gateway.Route)
	size += len(record.Gateway.Method)
	size += len(record.Gateway.ClientIP)
	// status, latency and timestamp
	size += 24

	return size
}

// Manager manages the buffers of many archive streams, creating them on demand.
// Uses double-checked locking for efficient concurrent access.
type Manager struct {
	buffers      map[event.StreamID]*StreamBuffer
	maxSizeBytes int64
	maxRecords   int
	mu           sync.RWMutex
}

// NewManager creates a new buffer manager.
func NewManager(maxSizeBytes int64, maxRecords int) *Manager {
	return &Manager{
		buffers:      make(map[event.StreamID]*StreamBuffer),
		maxSizeBytes: maxSizeBytes,
		maxRecords:   maxRecords,
	}
}

// GetOrCreate returns the buffer of a stream, creating it if needed.
func (m *Manager) GetOrCreate(stream event.StreamID) buffer.Buffer {
	return m.getOrCreate(stream)
}

func (m *Manager) getOrCreate(stream event.StreamID) *StreamBuffer {
	m.mu.RLock()
	buf, exists := m.buffers[stream]
	m.mu.RUnlock()

	if exists {
		return buf
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if buf, exists := m.buffers[stream]; exists {
		return buf
	}

	buf = New(stream, m.maxSizeBytes, m.maxRecords)
	m.buffers[stream] = buf
	return buf
}

// Buffers returns every buffer ordered by stream.
func (m *Manager) Buffers() []*StreamBuffer {
	m.mu.RLock()
	out := make([]*StreamBuffer, 0, len(m.buffers))
	for _, buf := range m.buffers {
		out = append(out, buf)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].stream.Plugin != out[j].stream.Plugin {
			return out[i].stream.Plugin < out[j].stream.Plugin
		}
		return out[i].stream.Shard < out[j].stream.Shard
	})
	return out
}
