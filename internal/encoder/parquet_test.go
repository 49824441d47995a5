package encoder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/gatewaypipe/pkg/event"
)

func TestParquetEncoder_FileExtension(t *testing.T) {
	enc := NewParquetEncoder("snappy")
	if ext := enc.FileExtension(); ext != ".parquet" {
		t.Errorf("FileExtension() = %v, want .parquet", ext)
	}
	if f := enc.Format(); f != event.FormatParquet {
		t.Errorf("Format() = %v, want %v", f, event.FormatParquet)
	}
}

// TestParquetEncoder_RoundTrip verifies columns survive a write and read,
// including native timestamps for Athena.
func TestParquetEncoder_RoundTrip(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "audit.parquet")

	records := testRecords(3)
	subject := "orders"
	contentType := "application/json"
	records[0].Event.Subject = &subject
	records[0].Event.DataContentType = &contentType

	stats, err := NewParquetEncoder("snappy").Encode(testFile, records)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if stats.RecordCount != 3 {
		t.Errorf("RecordCount = %d, want 3", stats.RecordCount)
	}
	if stats.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want positive", stats.SizeBytes)
	}

	rows, err := parquet.ReadFile[AuditRow](testFile)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if len(rows) != len(records) {
		t.Fatalf("row count = %d, want %d", len(rows), len(records))
	}

	row := rows[0]
	if row.Plugin != "sign" || row.Status != 201 || row.LatencyMs != 42 {
		t.Errorf("row = %+v, want plugin sign status 201 latency 42", row)
	}
	if row.Subject == nil || *row.Subject != subject {
		t.Errorf("subject = %v, want %v", row.Subject, subject)
	}
	if rows[1].Subject != nil {
		t.Errorf("rows[1].subject = %v, want nil", *rows[1].Subject)
	}
	if !row.RequestTime.Equal(records[0].Gateway.Timestamp) {
		t.Errorf("request_time = %v, want %v", row.RequestTime, records[0].Gateway.Timestamp)
	}
	if row.Time == nil || row.Time.Sub(*records[0].Event.Time).Abs() > time.Millisecond {
		t.Errorf("time = %v, want %v", row.Time, records[0].Event.Time)
	}
}

func TestParquetEncoder_CompressionCodecs(t *testing.T) {
	for _, codec := range codecs[event.FormatParquet] {
		t.Run(codec, func(t *testing.T) {
			testFile := filepath.Join(t.TempDir(), "codec.parquet")
			if _, err := NewParquetEncoder(codec).Encode(testFile, testRecords(10)); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}

			rows, err := parquet.ReadFile[AuditRow](testFile)
			if err != nil {
				t.Fatalf("failed to read file: %v", err)
			}
			if len(rows) != 10 {
				t.Errorf("row count = %d, want 10", len(rows))
			}
		})
	}
}

func TestCompressionCodec_UnknownFallsBack(t *testing.T) {
	if compressionCodec("brotli") == nil {
		t.Error("compressionCodec() returned nil for unknown codec")
	}
}
