package buffer

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

func testRecord(id string, data string) event.Record {
	now := time.Now()
	return event.Record{
		Event: &event.CloudEvent{
			ID:          id,
			Source:      "/gateway/plugins/sign",
			SpecVersion: "1.0",
			Type:        "gateway.request.audited",
			Time:        &now,
			Data:        []byte(data),
		},
		Gateway: event.GatewayMetadata{
			Plugin:    "sign",
			Route:     "/orders",
			Method:    "GET",
			Status:    200,
			Timestamp: now,
		},
		ProcessedAt: now,
	}
}

func TestNew(t *testing.T) {
	stream := event.StreamID{Plugin: "sign", Shard: 0}
	buf := New(stream, 1024*1024, 1000)

	if buf == nil {
		t.Fatal("expected non-nil buffer")
	}
	if buf.Stream() != stream {
		t.Errorf("Stream() = %v, want %v", buf.Stream(), stream)
	}
	if buf.maxSizeBytes != 1024*1024 {
		t.Errorf("maxSizeBytes = %d, want %d", buf.maxSizeBytes, 1024*1024)
	}
	if buf.maxRecords != 1000 {
		t.Errorf("maxRecords = %d, want 1000", buf.maxRecords)
	}
	if !buf.IsEmpty() {
		t.Error("new buffer should be empty")
	}
}

func TestStreamBuffer_Add(t *testing.T) {
	buf := New(event.StreamID{Plugin: "sign"}, 1024*1024, 100)

	if err := buf.Add(testRecord("req-1", `{"test": "data"}`)); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	stats := buf.Stats()
	if stats.RecordCount != 1 {
		t.Errorf("RecordCount = %d, want 1", stats.RecordCount)
	}
	if stats.SizeBytes == 0 {
		t.Error("expected non-zero size")
	}
	if stats.FirstWriteTime.IsZero() || stats.LastWriteTime.IsZero() {
		t.Error("expected write times to be set")
	}
}

func TestStreamBuffer_Limits(t *testing.T) {
	tests := []struct {
		name       string
		maxSize    int64
		maxRecords int
		accepted   int
	}{
		{"record limit", 1024 * 1024, 2, 2},
		{"size limit", 200, 100, 1},
		{"no size limit", 0, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := New(event.StreamID{Plugin: "sign"}, tt.maxSize, tt.maxRecords)
			data := `{"payload":"` + string(make([]byte, 100)) + `"}`

			accepted := 0
			var err error
			for i := 0; i < 10; i++ {
				if err = buf.Add(testRecord(fmt.Sprintf("req-%d", i), data)); err != nil {
					break
				}
				accepted++
			}

			if accepted != tt.accepted {
				t.Errorf("accepted = %d, want %d", accepted, tt.accepted)
			}
			if !errors.Is(err, apperrors.ErrBufferFull) {
				t.Errorf("error = %v, want ErrBufferFull", err)
			}
		})
	}
}

func TestStreamBuffer_OversizedFirstRecord(t *testing.T) {
	buf := New(event.StreamID{Plugin: "sign"}, 10, 10)

	if err := buf.Add(testRecord("big", `{"much":"more than ten bytes"}`)); err != nil {
		t.Fatalf("Add() into empty buffer error = %v", err)
	}
	if err := buf.Add(testRecord("next", `{}`)); !errors.Is(err, apperrors.ErrBufferFull) {
		t.Errorf("second Add() error = %v, want ErrBufferFull", err)
	}
}

func TestStreamBuffer_Drain(t *testing.T) {
	buf := New(event.StreamID{Plugin: "sign"}, 1024*1024, 100)

	for i := 0; i < 5; i++ {
		_ = buf.Add(testRecord(fmt.Sprintf("req-%d", i), `{}`))
	}

	records := buf.Drain()
	if len(records) != 5 {
		t.Errorf("Drain() returned %d records, want 5", len(records))
	}
	for i, r := range records {
		if want := fmt.Sprintf("req-%d", i); r.Event.ID != want {
			t.Errorf("records[%d].ID = %s, want %s", i, r.Event.ID, want)
		}
	}

	stats := buf.Stats()
	if stats.RecordCount != 0 || stats.SizeBytes != 0 {
		t.Errorf("Stats() after Drain = %+v, want empty", stats)
	}
	if !stats.FirstWriteTime.IsZero() {
		t.Error("FirstWriteTime should be reset after Drain")
	}

	// The drained slice is not touched by later writes.
	_ = buf.Add(testRecord("after", `{}`))
	if records[0].Event.ID != "req-0" {
		t.Errorf("drained records mutated: %s", records[0].Event.ID)
	}
}

func TestStreamBuffer_Reset(t *testing.T) {
	buf := New(event.StreamID{Plugin: "sign"}, 1024*1024, 100)
	_ = buf.Add(testRecord("req-1", `{}`))

	buf.Reset()
	if !buf.IsEmpty() {
		t.Error("buffer should be empty after Reset")
	}
}

func TestStreamBuffer_Concurrent(t *testing.T) {
	buf := New(event.StreamID{Plugin: "sign"}, 0, 10000)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = buf.Add(testRecord(fmt.Sprintf("g%d-%d", g, i), `{}`))
				_ = buf.Stats()
			}
		}(g)
	}
	wg.Wait()

	if got := buf.Stats().RecordCount; got != 1000 {
		t.Errorf("RecordCount = %d, want 1000", got)
	}
}

func TestEstimateSize_NilEvent(t *testing.T) {
	record := event.Record{Gateway: event.GatewayMetadata{Plugin: "sign"}}
	if size := estimateSize(record); size <= 0 {
		t.Errorf("estimateSize() = %d, want positive", size)
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	manager := NewManager(1024, 10)

	a := manager.GetOrCreate(event.StreamID{Plugin: "sign", Shard: 0})
	b := manager.GetOrCreate(event.StreamID{Plugin: "sign", Shard: 1})
	again := manager.GetOrCreate(event.StreamID{Plugin: "sign", Shard: 0})

	if a == b {
		t.Error("different streams should get different buffers")
	}
	if a != again {
		t.Error("same stream should get the same buffer")
	}
}

func TestManager_Buffers(t *testing.T) {
	manager := NewManager(1024, 10)
	manager.GetOrCreate(event.StreamID{Plugin: "waf", Shard: 1})
	manager.GetOrCreate(event.StreamID{Plugin: "sign", Shard: 2})
	manager.GetOrCreate(event.StreamID{Plugin: "sign", Shard: 0})

	got := manager.Buffers()
	want := []event.StreamID{{Plugin: "sign", Shard: 0}, {Plugin: "sign", Shard: 2}, {Plugin: "waf", Shard: 1}}
	if len(got) != len(want) {
		t.Fatalf("Buffers() returned %d buffers, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Stream() != want[i] {
			t.Errorf("Buffers()[%d] = %v, want %v", i, got[i].Stream(), want[i])
		}
	}
}

func TestManager_ConcurrentGetOrCreate(t *testing.T) {
	manager := NewManager(1024, 10)
	stream := event.StreamID{Plugin: "sign", Shard: 0}

	results := make([]interface{}, 50)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = manager.GetOrCreate(stream)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent GetOrCreate returned different buffers")
		}
	}
}
