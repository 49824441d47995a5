package encoder

import (
	"fmt"
	"time"

	"github.com/jittakal/gatewaypipe/pkg/event"
)

// AuditRow is the archived form of an audit record.
// Uses native Parquet types for Athena compatibility, including TIMESTAMP_MICROS for time fields.
type AuditRow struct {
	// CloudEvent fields - required
	SpecVersion string `parquet:"spec_version,dict"`
	ID          string `parquet:"id,dict"`
	Source      string `parquet:"source,dict"`
	Type        string `parquet:"type,dict"`
	Data        string `parquet:"data"`

	// CloudEvent fields - optional (using pointers for proper NULL handling)
	Subject         *string    `parquet:"subject,dict,optional"`
	DataContentType *string    `parquet:"data_content_type,dict,optional"`
	DataSchema      *string    `parquet:"data_schema,dict,optional"`
	Time            *time.Time `parquet:"time,timestamp(microsecond),optional"`

	// Gateway request fields
	Plugin      string    `parquet:"plugin,dict"`
	Route       string    `parquet:"route,dict"`
	Method      string    `parquet:"method,dict"`
	Status      int32     `parquet:"status"`
	LatencyMs   int64     `parquet:"latency_ms"`
	ClientIP    string    `parquet:"client_ip"`
	RequestTime time.Time `parquet:"request_time,timestamp(microsecond)"`

	// Storage metadata
	IngestedAt time.Time `parquet:"ingested_at,timestamp(microsecond)"`
}

// NewAuditRow flattens a record into an AuditRow.
func NewAuditRow(record event.Record) (AuditRow, error) {
	if record.Event == nil {
		return AuditRow{}, fmt.Errorf("record has no event")
	}

	return AuditRow{
		SpecVersion:     record.Event.SpecVersion,
		ID:              record.Event.ID,
		Source:          record.Event.Source,
		Type:            record.Event.Type,
		Data:            string(record.Event.Data),
		Subject:         record.Event.Subject,
		DataContentType: record.Event.DataContentType,
		DataSchema:      record.Event.DataSchema,
		Time:            record.Event.Time,
		Plugin:          record.Gateway.Plugin,
		Route:           record.Gateway.Route,
		Method:          record.Gateway.Method,
		Status:          int32(record.Gateway.Status),
		LatencyMs:       record.Gateway.Latency.Milliseconds(),
		ClientIP:        record.Gateway.ClientIP,
		RequestTime:     record.Gateway.Timestamp,
		IngestedAt:      record.ProcessedAt,
	}, nil
}
