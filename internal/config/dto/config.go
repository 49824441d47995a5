// Package dto holds the configuration structures decoded by the loader.
package dto

import (
	"fmt"
	"time"

	"github.com/jittakal/gatewaypipe/internal/encoder"
	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/internal/ringbuffer"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Pipelines     PipelinesConfig     `mapstructure:"pipelines"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Storage       StorageConfig       `mapstructure:"storage"`
	FileRotation  FileRotationConfig  `mapstructure:"file_rotation"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Parquet       ParquetConfig       `mapstructure:"parquet"`
	Avro          AvroConfig          `mapstructure:"avro"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
	RPC           RPCConfig           `mapstructure:"rpc"`
	Generator     GeneratorConfig     `mapstructure:"generator"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// PipelinesConfig configures one dispatch pipeline per kind of side work.
type PipelinesConfig struct {
	Audit     PipelineConfig `mapstructure:"audit"`
	Archive   PipelineConfig `mapstructure:"archive"`
	Metrics   PipelineConfig `mapstructure:"metrics"`
	RateLimit PipelineConfig `mapstructure:"ratelimit"`
	RPC       PipelineConfig `mapstructure:"rpc"`
}

// All returns the pipeline sections keyed by their configuration name.
func (p *PipelinesConfig) All() map[string]*PipelineConfig {
	return map[string]*PipelineConfig{
		"audit":     &p.Audit,
		"archive":   &p.Archive,
		"metrics":   &p.Metrics,
		"ratelimit": &p.RateLimit,
		"rpc":       &p.RPC,
	}
}

// PipelineConfig contains the ring and executor settings of one pipeline.
// Zero BufferSize and ConsumerCount select the built-in defaults.
type PipelineConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	BufferSize    int            `mapstructure:"buffer_size"`
	ConsumerCount int            `mapstructure:"consumer_count"`
	WaitStrategy  string         `mapstructure:"wait_strategy"`
	Executor      ExecutorConfig `mapstructure:"executor"`
}

// ExecutorConfig contains dispatch executor settings.
type ExecutorConfig struct {
	Workers       int    `mapstructure:"workers"`
	QueuePolicy   string `mapstructure:"queue_policy"`
	QueueCapacity int    `mapstructure:"queue_capacity"`
	TaskTimeoutMS int    `mapstructure:"task_timeout_ms"`
}

// TaskTimeout returns the per-task timeout, zero for none.
func (c ExecutorConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutMS) * time.Millisecond
}

// Validate checks the pipeline section named name.
func (c *PipelineConfig) Validate(name string) error {
	if !c.Enabled {
		return nil
	}
	if c.BufferSize < 0 || (c.BufferSize > 0 && c.BufferSize&(c.BufferSize-1) != 0) {
		return &apperrors.InvalidConfigError{
			Field:  "pipelines." + name + ".buffer_size",
			Reason: fmt.Sprintf("must be a power of two, got %d", c.BufferSize),
		}
	}
	if c.ConsumerCount < 0 {
		return &apperrors.InvalidConfigError{
			Field:  "pipelines." + name + ".consumer_count",
			Reason: fmt.Sprintf("must be at least 1, got %d", c.ConsumerCount),
		}
	}
	if _, err := ringbuffer.ParseWaitStrategy(c.WaitStrategy); err != nil {
		return &apperrors.InvalidConfigError{
			Field:  "pipelines." + name + ".wait_strategy",
			Value:  c.WaitStrategy,
			Reason: fmt.Sprintf("unsupported wait strategy: %s", c.WaitStrategy),
		}
	}
	return nil
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	BootstrapServers      []string `mapstructure:"bootstrap_servers"`
	SecurityProtocol      string   `mapstructure:"security_protocol"`
	SASLMechanism         string   `mapstructure:"sasl_mechanism"`
	SASLUsername          string   `mapstructure:"sasl_username"`
	SASLPassword          string   `mapstructure:"sasl_password"`
	AWSRegion             string   `mapstructure:"aws_region"`
	TLSInsecureSkipVerify bool     `mapstructure:"tls_insecure_skip_verify"`
	AuditTopic            string   `mapstructure:"audit_topic"`
	ClientID              string   `mapstructure:"client_id"`
	Compression           string   `mapstructure:"compression"`
	MaxRetries            int      `mapstructure:"max_retries"`
}

// StorageConfig contains storage backend configuration
type StorageConfig struct {
	Backend     string      `mapstructure:"backend"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	BasePath    string      `mapstructure:"base_path"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// Location returns the URI scheme and bucket for the selected backend.
func (c *StorageConfig) Location() (protocol, bucket string) {
	switch c.Backend {
	case "s3":
		return "s3", c.S3.Bucket
	case "azure":
		return "wasbs", c.Azure.Container
	case "gcs":
		return "gs", c.GCS.Bucket
	default:
		return "file", "local"
	}
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	Endpoint             string `mapstructure:"endpoint"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// Validate checks that the selected backend is fully configured.
func (c *StorageConfig) Validate() error {
	required := func(field, value string) error {
		if value == "" {
			return &apperrors.InvalidConfigError{Field: "storage." + field, Reason: "required for " + c.Backend + " backend"}
		}
		return nil
	}

	var err error
	switch c.Backend {
	case "s3":
		if err = required("s3.bucket", c.S3.Bucket); err == nil {
			err = required("s3.region", c.S3.Region)
		}
	case "azure":
		if err = required("azure.account_name", c.Azure.AccountName); err == nil {
			err = required("azure.container", c.Azure.Container)
		}
	case "gcs":
		err = required("gcs.bucket", c.GCS.Bucket)
	case "file":
		err = required("file.base_path", c.File.BasePath)
	default:
		err = &apperrors.InvalidConfigError{Field: "storage.backend", Reason: fmt.Sprintf("unsupported storage backend: %s", c.Backend)}
	}
	if err != nil {
		return err
	}

	if c.Format != "parquet" && c.Format != "avro" {
		return &apperrors.InvalidConfigError{Field: "storage.format", Reason: fmt.Sprintf("unsupported storage format: %s", c.Format)}
	}
	return nil
}

// ArchiveEncoding returns the archive file format and its compression:
// storage.compression when set, otherwise parquet.compression or avro.codec.
func (c *ApplicationConfig) ArchiveEncoding() (event.FileFormat, string) {
	format := event.FormatParquet
	compression := c.Parquet.Compression
	if c.Storage.Format == string(event.FormatAvro) {
		format = event.FormatAvro
		compression = c.Avro.Codec
	}
	if c.Storage.Compression != "" {
		compression = c.Storage.Compression
	}
	return format, compression
}

// FileRotationConfig contains file rotation settings
type FileRotationConfig struct {
	MaxFileSizeMB      int64  `mapstructure:"max_file_size_mb"`
	MaxRecordsPerFile  int    `mapstructure:"max_records_per_file"`
	MaxDurationSeconds int    `mapstructure:"max_duration_seconds"`
	Strategy           string `mapstructure:"strategy"`
}

// ArchiveConfig contains archive buffering settings.
type ArchiveConfig struct {
	BufferSizeMB         int `mapstructure:"buffer_size_mb"`
	FlushIntervalSeconds int `mapstructure:"flush_interval_seconds"`
	WriteTimeoutSeconds  int `mapstructure:"write_timeout_seconds"`
}

// ParquetConfig contains Parquet format settings
type ParquetConfig struct {
	Compression string `mapstructure:"compression"`
}

// AvroConfig contains Avro format settings
type AvroConfig struct {
	Codec string `mapstructure:"codec"`
}

// RateLimitConfig contains rate-limit accounting settings.
type RateLimitConfig struct {
	MaxKeys         int     `mapstructure:"max_keys"`
	TokensPerSecond float64 `mapstructure:"tokens_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// RPCConfig contains RPC reference cache settings.
type RPCConfig struct {
	CacheSize     int    `mapstructure:"cache_size"`
	DefaultTarget string `mapstructure:"default_target"`
	DialTimeoutMS int    `mapstructure:"dial_timeout_ms"`
	Insecure      bool   `mapstructure:"insecure"`
}

// GeneratorConfig contains synthetic traffic settings.
type GeneratorConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	RequestsPerSec int      `mapstructure:"requests_per_second"`
	Plugins        []string `mapstructure:"plugins"`
	Services       int      `mapstructure:"services"`
	EventSource    string   `mapstructure:"event_source"`
	EventType      string   `mapstructure:"event_type"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check and admin endpoint settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
	AdminEnabled  bool   `mapstructure:"admin_enabled"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds  int `mapstructure:"grace_period_seconds"`
	ForceTimeoutSeconds int `mapstructure:"force_timeout_seconds"`
}

// GracePeriod returns how long pipelines get to drain on shutdown.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// ForceTimeout returns the hard deadline after which the process exits.
func (c ShutdownConfig) ForceTimeout() time.Duration {
	return time.Duration(c.ForceTimeoutSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return &apperrors.InvalidConfigError{Field: "application.name", Reason: "required"}
	}

	for name, p := range c.Pipelines.All() {
		if err := p.Validate(name); err != nil {
			return err
		}
	}

	if c.Pipelines.Audit.Enabled {
		if len(c.Kafka.BootstrapServers) == 0 {
			return &apperrors.InvalidConfigError{Field: "kafka.bootstrap_servers", Reason: "required when the audit pipeline is enabled"}
		}
		if c.Kafka.AuditTopic == "" {
			return &apperrors.InvalidConfigError{Field: "kafka.audit_topic", Reason: "required when the audit pipeline is enabled"}
		}
	}

	if c.Pipelines.Archive.Enabled {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
		if _, err := encoder.ResolveCompression(c.ArchiveEncoding()); err != nil {
			return err
		}
		if c.FileRotation.Strategy != "any" && c.FileRotation.Strategy != "all" {
			return &apperrors.InvalidConfigError{Field: "file_rotation.strategy", Reason: fmt.Sprintf("unsupported rotation strategy: %s", c.FileRotation.Strategy)}
		}
	}

	if c.RateLimit.TokensPerSecond < 0 || c.RateLimit.Burst < 0 {
		return &apperrors.InvalidConfigError{Field: "ratelimit", Reason: "tokens_per_second and burst must not be negative"}
	}

	for field, port := range map[string]int{
		"observability.metrics.port": c.Observability.Metrics.Port,
		"observability.health.port":  c.Observability.Health.Port,
	} {
		if port < 1 || port > 65535 {
			return &apperrors.InvalidConfigError{Field: field, Reason: fmt.Sprintf("invalid port: %d", port)}
		}
	}

	return nil
}
