package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// CloudEvent represents a CloudEvents 1.0 event.
// See https://github.com/cloudevents/spec/blob/v1.0/spec.md
type CloudEvent struct {
	// Required attributes
	ID          string `json:"id"`
	Source      string `json:"source"`
	SpecVersion string `json:"specversion"`
	Type        string `json:"type"`

	// Optional attributes
	DataContentType *string    `json:"datacontenttype,omitempty"`
	DataSchema      *string    `json:"dataschema,omitempty"`
	Subject         *string    `json:"subject,omitempty"`
	Time            *time.Time `json:"time,omitempty"`

	// Event data - can be any JSON value (object, array, string, number, etc.)
	Data json.RawMessage `json:"data,omitempty"`

	// Extension attributes
	Extensions map[string]interface{} `json:"-"`
}

// GatewayMetadata describes the gateway request that produced an audit event.
type GatewayMetadata struct {
	Plugin    string
	Route     string
	Method    string
	Status    int
	Latency   time.Duration
	ClientIP  string
	Timestamp time.Time
}

// Record is an audit event together with its gateway context.
// It is the payload of the audit and archive pipelines and the archived row.
type Record struct {
	Event       *CloudEvent
	Gateway     GatewayMetadata
	ProcessedAt time.Time
}

// GetEventTime returns the event's timestamp.
// It returns the CloudEvent.Time if present, otherwise falls back to the gateway request time.
func (r *Record) GetEventTime() time.Time {
	if r.Event != nil && r.Event.Time != nil {
		return *r.Event.Time
	}
	return r.Gateway.Timestamp
}

// GetEventTimeUnix returns the event's timestamp as Unix seconds.
func (r *Record) GetEventTimeUnix() int64 {
	return r.GetEventTime().Unix()
}

// StreamID identifies one archive stream: the records of a plugin buffered by one consumer unit.
type StreamID struct {
	Plugin string
	Shard  int
}

// String returns a string representation in the format "plugin-shard".
func (s StreamID) String() string {
	return fmt.Sprintf("%s-%d", s.Plugin, s.Shard)
}

// FileStats contains statistics about buffered events.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// FileFormat represents the storage file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)

// Validator validates CloudEvents.
type Validator interface {
	// Validate checks if a CloudEvent is valid according to the spec.
	Validate(event *CloudEvent) error
}

// RequestMetric is one gateway request observation.
type RequestMetric struct {
	Plugin        string
	Route         string
	Method        string
	Status        int
	Latency       time.Duration
	RequestBytes  int64
	ResponseBytes int64
}

// RateUsage charges Tokens against the rate-limit key Key.
type RateUsage struct {
	Key    string
	Plugin string
	Tokens int
	At     time.Time
}

// ServiceMetadata describes an upstream RPC method exposed through the gateway.
type ServiceMetadata struct {
	AppName        string `json:"appName"`
	Path           string `json:"path"`
	ServiceName    string `json:"serviceName"`
	MethodName     string `json:"methodName"`
	ParameterTypes string `json:"parameterTypes,omitempty"`
	RPCType        string `json:"rpcType"`
	RPCExt         string `json:"rpcExt,omitempty"`
	Enabled        bool   `json:"enabled"`
}
