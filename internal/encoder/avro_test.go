package encoder

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/gatewaypipe/pkg/event"
)

func TestNewAvroEncoder(t *testing.T) {
	tests := []struct {
		compression string
		wantExt     string
	}{
		{"gzip", ".avro.gz"},
		{"GZIP", ".avro.gz"},
		{"uncompressed", ".avro"},
		{"", ".avro"},
	}

	for _, tt := range tests {
		t.Run(tt.compression, func(t *testing.T) {
			enc, err := NewAvroEncoder(tt.compression)
			if err != nil {
				t.Fatalf("NewAvroEncoder() error = %v", err)
			}
			if ext := enc.FileExtension(); ext != tt.wantExt {
				t.Errorf("FileExtension() = %v, want %v", ext, tt.wantExt)
			}
			if f := enc.Format(); f != event.FormatAvro {
				t.Errorf("Format() = %v, want %v", f, event.FormatAvro)
			}
		})
	}
}

// readAvro decodes every datum of an OCF container.
func readAvro(t *testing.T, data []byte, gzipped bool) []map[string]interface{} {
	t.Helper()

	var r io.Reader = bytes.NewReader(data)
	if gzipped {
		gz, err := gzip.NewReader(r)
		if err != nil {
			t.Fatalf("gzip.NewReader() error = %v", err)
		}
		defer gz.Close()
		r = gz
	}

	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		t.Fatalf("NewOCFReader() error = %v", err)
	}

	var out []map[string]interface{}
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		out = append(out, datum.(map[string]interface{}))
	}
	if err := ocf.Err(); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return out
}

func TestAvroEncoder_Encode(t *testing.T) {
	for _, compression := range []string{"gzip", "uncompressed"} {
		t.Run(compression, func(t *testing.T) {
			enc, err := NewAvroEncoder(compression)
			if err != nil {
				t.Fatalf("NewAvroEncoder() error = %v", err)
			}

			testFile := filepath.Join(t.TempDir(), "audit"+enc.FileExtension())
			stats, err := enc.Encode(testFile, testRecords(5))
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if stats.RecordCount != 5 {
				t.Errorf("RecordCount = %d, want 5", stats.RecordCount)
			}

			data, err := os.ReadFile(testFile)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if int64(len(data)) != stats.SizeBytes {
				t.Errorf("SizeBytes = %d, file has %d", stats.SizeBytes, len(data))
			}

			datums := readAvro(t, data, enc.gzipped())
			if len(datums) != 5 {
				t.Fatalf("decoded %d records, want 5", len(datums))
			}
			if datums[0]["plugin"] != "sign" {
				t.Errorf("plugin = %v, want sign", datums[0]["plugin"])
			}
			if datums[0]["status"] != int32(201) {
				t.Errorf("status = %v, want 201", datums[0]["status"])
			}
		})
	}
}

func TestAvroEncoder_EncodeToBytes(t *testing.T) {
	enc, err := NewAvroEncoder("gzip")
	if err != nil {
		t.Fatalf("NewAvroEncoder() error = %v", err)
	}

	data, err := enc.EncodeToBytes(testRecords(2))
	if err != nil {
		t.Fatalf("EncodeToBytes() error = %v", err)
	}
	if got := len(readAvro(t, data, true)); got != 2 {
		t.Errorf("decoded %d records, want 2", got)
	}

	if _, err := enc.EncodeToBytes(nil); err == nil {
		t.Error("EncodeToBytes(nil) expected error")
	}
}

func TestAvroSchema(t *testing.T) {
	schema := avroSchema()
	for _, field := range []string{"spec_version", "id", "source", "type", "data", "plugin", "route", "method", "status", "latency_ms", "client_ip", "request_time", "ingested_at"} {
		if !strings.Contains(schema, `"`+field+`"`) {
			t.Errorf("schema missing field %q", field)
		}
	}
}

func TestToAvroMap_NullFields(t *testing.T) {
	record := testRecords(1)[0]
	empty := ""
	record.Event.Time = nil
	record.Event.Subject = &empty

	m, err := toAvroMap(record)
	if err != nil {
		t.Fatalf("toAvroMap() error = %v", err)
	}
	if m["time"] != nil {
		t.Errorf("time = %v, want nil", m["time"])
	}
	if m["subject"] != nil {
		t.Errorf("subject = %v, want nil", m["subject"])
	}
	if m["data_schema"] != nil {
		t.Errorf("data_schema = %v, want nil", m["data_schema"])
	}
	if m["latency_ms"] != int64(42) {
		t.Errorf("latency_ms = %v, want 42", m["latency_ms"])
	}
}
