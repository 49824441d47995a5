package encoder

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

func TestResolveCompression(t *testing.T) {
	tests := []struct {
		name        string
		format      event.FileFormat
		compression string
		want        string
		wantField   string
	}{
		{"parquet default", event.FormatParquet, "", "snappy", ""},
		{"avro default", event.FormatAvro, "", "gzip", ""},
		{"parquet zstd", event.FormatParquet, "zstd", "zstd", ""},
		{"upper case", event.FormatParquet, "GZIP", "gzip", ""},
		{"none is uncompressed", event.FormatAvro, "none", "uncompressed", ""},
		{"avro has no snappy", event.FormatAvro, "snappy", "", "storage.compression"},
		{"unknown codec", event.FormatParquet, "brotli", "", "storage.compression"},
		{"unknown format", event.FileFormat("csv"), "", "", "storage.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCompression(tt.format, tt.compression)
			if tt.wantField != "" {
				var configErr *apperrors.InvalidConfigError
				if !errors.As(err, &configErr) {
					t.Fatalf("ResolveCompression() error = %v, want InvalidConfigError", err)
				}
				if configErr.Field != tt.wantField {
					t.Errorf("Field = %s, want %s", configErr.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveCompression() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveCompression() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFactory_CreateEncoder(t *testing.T) {
	tests := []struct {
		name        string
		format      event.FileFormat
		compression string
		wantExt     string
	}{
		{"parquet", event.FormatParquet, "snappy", ".parquet"},
		{"avro gzip", event.FormatAvro, "", ".avro.gz"},
		{"avro plain", event.FormatAvro, "none", ".avro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, err := NewFactory(tt.format, tt.compression)
			if err != nil {
				t.Fatalf("NewFactory() error = %v", err)
			}
			if factory.Format() != tt.format {
				t.Errorf("Format() = %v, want %v", factory.Format(), tt.format)
			}

			enc, err := factory.CreateEncoder()
			if err != nil {
				t.Fatalf("CreateEncoder() error = %v", err)
			}
			if enc.Format() != tt.format {
				t.Errorf("encoder Format() = %v, want %v", enc.Format(), tt.format)
			}
			if enc.FileExtension() != tt.wantExt {
				t.Errorf("FileExtension() = %s, want %s", enc.FileExtension(), tt.wantExt)
			}
		})
	}
}

func TestNewFactory_Invalid(t *testing.T) {
	if _, err := NewFactory(event.FileFormat("invalid"), ""); err == nil {
		t.Error("NewFactory() expected error for unsupported format")
	}
	if _, err := NewFactory(event.FormatAvro, "lz4"); err == nil {
		t.Error("NewFactory() expected error for lz4 avro")
	}
}

func testRecords(n int) []event.Record {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	records := make([]event.Record, n)
	for i := range records {
		at := now.Add(time.Duration(i) * time.Second)
		records[i] = event.Record{
			Event: &event.CloudEvent{
				SpecVersion: "1.0",
				ID:          "req-" + string(rune('a'+i%26)),
				Source:      "/gateway/plugins/sign",
				Type:        "gateway.request.audited",
				Time:        &at,
				Data:        []byte(`{"path":"/orders","user":"u-1"}`),
			},
			Gateway: event.GatewayMetadata{
				Plugin:    "sign",
				Route:     "/orders",
				Method:    "POST",
				Status:    201,
				Latency:   42 * time.Millisecond,
				ClientIP:  "10.0.0.7",
				Timestamp: at,
			},
			ProcessedAt: at.Add(time.Millisecond),
		}
	}
	return records
}

func TestNewAuditRow(t *testing.T) {
	record := testRecords(1)[0]
	row, err := NewAuditRow(record)
	if err != nil {
		t.Fatalf("NewAuditRow() error = %v", err)
	}

	if row.ID != record.Event.ID {
		t.Errorf("ID = %s, want %s", row.ID, record.Event.ID)
	}
	if row.Plugin != "sign" || row.Route != "/orders" || row.Method != "POST" {
		t.Errorf("gateway columns = %s %s %s, want sign /orders POST", row.Plugin, row.Route, row.Method)
	}
	if row.Status != 201 {
		t.Errorf("Status = %d, want 201", row.Status)
	}
	if row.LatencyMs != 42 {
		t.Errorf("LatencyMs = %d, want 42", row.LatencyMs)
	}
	if row.Data != `{"path":"/orders","user":"u-1"}` {
		t.Errorf("Data = %s", row.Data)
	}
	if !row.IngestedAt.Equal(record.ProcessedAt) {
		t.Errorf("IngestedAt = %v, want %v", row.IngestedAt, record.ProcessedAt)
	}
}

func TestNewAuditRow_NilEvent(t *testing.T) {
	if _, err := NewAuditRow(event.Record{}); err == nil {
		t.Error("NewAuditRow() expected error for record without event")
	}
}

func TestEncoders_EncodeEmptyRecords(t *testing.T) {
	avroEnc, err := NewAvroEncoder("gzip")
	if err != nil {
		t.Fatalf("NewAvroEncoder() error = %v", err)
	}

	dir := t.TempDir()
	if _, err := NewParquetEncoder("snappy").Encode(filepath.Join(dir, "empty.parquet"), nil); err == nil {
		t.Error("parquet Encode() expected error for empty records")
	}
	if _, err := avroEnc.Encode(filepath.Join(dir, "empty.avro"), nil); err == nil {
		t.Error("avro Encode() expected error for empty records")
	}
}

func BenchmarkParquetEncoder_Encode(b *testing.B) {
	enc := NewParquetEncoder("snappy")
	records := testRecords(100)
	path := filepath.Join(b.TempDir(), "bench.parquet")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := enc.Encode(path, records); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAvroEncoder_Encode(b *testing.B) {
	enc, err := NewAvroEncoder("gzip")
	if err != nil {
		b.Fatal(err)
	}
	records := testRecords(100)
	path := filepath.Join(b.TempDir(), "bench.avro.gz")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := enc.Encode(path, records); err != nil {
			b.Fatal(err)
		}
	}
}
