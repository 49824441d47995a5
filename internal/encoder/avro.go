package encoder

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/gatewaypipe/pkg/encoder"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Apache Avro OCF (Object Container File) output
// with optional gzip compression of the whole file.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec:       codec,
		compression: compression,
	}, nil
}

// avroSchema returns the Avro schema for archived audit records.
func avroSchema() string {
	return `{
		"type": "record",
		"name": "AuditRecord",
		"namespace": "io.gatewaypipe.audit",
		"fields": [
			{"name": "spec_version", "type": "string"},
			{"name": "id", "type": "string"},
			{"name": "source", "type": "string"},
			{"name": "type", "type": "string"},
			{"name": "subject", "type": ["null", "string"], "default": null},
			{"name": "data_content_type", "type": ["null", "string"], "default": null},
			{"name": "data_schema", "type": ["null", "string"], "default": null},
			{"name": "time", "type": ["null", "string"], "default": null},
			{"name": "data", "type": "string"},
			{"name": "plugin", "type": "string"},
			{"name": "route", "type": "string"},
			{"name": "method", "type": "string"},
			{"name": "status", "type": "int"},
			{"name": "latency_ms", "type": "long"},
			{"name": "client_ip", "type": "string"},
			{"name": "request_time", "type": "string"},
			{"name": "ingested_at", "type": "string"}
		]
	}`
}

func (e *AvroEncoder) gzipped() bool {
	return strings.EqualFold(e.compression, "gzip")
}

// Encode writes records to an Avro file.
func (e *AvroEncoder) Encode(filePath string, records []event.Record) (*event.FileStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	if err := e.write(file, records); err != nil {
		file.Close()
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	now := time.Now()
	return &event.FileStats{
		RecordCount:    len(records),
		SizeBytes:      fileInfo.Size(),
		FirstWriteTime: now,
		LastWriteTime:  now,
	}, nil
}

// EncodeToBytes encodes records to an in-memory Avro container.
func (e *AvroEncoder) EncodeToBytes(records []event.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	var buf bytes.Buffer
	if err := e.write(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *AvroEncoder) write(w io.Writer, records []event.Record) error {
	var gzipWriter *gzip.Writer
	if e.gzipped() {
		gzipWriter = gzip.NewWriter(w)
		w = gzipWriter
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:     w,
		Codec: e.codec,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	for _, record := range records {
		avroMap, err := toAvroMap(record)
		if err != nil {
			return fmt.Errorf("failed to convert record: %w", err)
		}
		if err := ocfWriter.Append([]interface{}{avroMap}); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return nil
}

// toAvroMap converts a record to its Avro map representation.
func toAvroMap(record event.Record) (map[string]interface{}, error) {
	row, err := NewAuditRow(record)
	if err != nil {
		return nil, err
	}

	avroMap := map[string]interface{}{
		"spec_version":      row.SpecVersion,
		"id":                row.ID,
		"source":            row.Source,
		"type":              row.Type,
		"data":              row.Data,
		"subject":           nullableString(row.Subject),
		"data_content_type": nullableString(row.DataContentType),
		"data_schema":       nullableString(row.DataSchema),
		"time":              nil,
		"plugin":            row.Plugin,
		"route":             row.Route,
		"method":            row.Method,
		"status":            row.Status,
		"latency_ms":        row.LatencyMs,
		"client_ip":         row.ClientIP,
		"request_time":      row.RequestTime.Format(time.RFC3339Nano),
		"ingested_at":       row.IngestedAt.Format(time.RFC3339Nano),
	}
	if row.Time != nil {
		avroMap["time"] = goavro.Union("string", row.Time.Format(time.RFC3339Nano))
	}

	return avroMap, nil
}

// nullableString maps empty and nil values to an Avro null.
func nullableString(s *string) interface{} {
	if s == nil || *s == "" {
		return nil
	}
	return goavro.Union("string", *s)
}

// Format returns the file format.
func (e *AvroEncoder) Format() event.FileFormat {
	return event.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.gzipped() {
		return ".avro.gz"
	}
	return ".avro"
}
