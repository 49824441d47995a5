package dto

import (
	"errors"
	"testing"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

func validConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Application: ApplicationInfo{Name: "gatewaypipe"},
		Pipelines: PipelinesConfig{
			Audit:   PipelineConfig{Enabled: true, BufferSize: 1024},
			Archive: PipelineConfig{Enabled: true},
		},
		Kafka:        KafkaConfig{BootstrapServers: []string{"localhost:9092"}, AuditTopic: "gateway-audit"},
		Storage:      StorageConfig{Backend: "file", Format: "parquet", File: FileConfig{BasePath: "/tmp"}},
		FileRotation: FileRotationConfig{Strategy: "any"},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Port: 9090},
			Health:  HealthConfig{Port: 8080},
		},
	}
}

func TestApplicationConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ApplicationConfig)
		field  string
	}{
		{"valid", func(c *ApplicationConfig) {}, ""},
		{"missing name", func(c *ApplicationConfig) { c.Application.Name = "" }, "application.name"},
		{"negative consumers", func(c *ApplicationConfig) { c.Pipelines.Audit.ConsumerCount = -1 }, "pipelines.audit.consumer_count"},
		{"bad wait strategy", func(c *ApplicationConfig) { c.Pipelines.Archive.WaitStrategy = "spin" }, "pipelines.archive.wait_strategy"},
		{"disabled pipeline is not checked", func(c *ApplicationConfig) {
			c.Pipelines.RPC = PipelineConfig{Enabled: false, BufferSize: 3}
		}, ""},
		{"missing audit topic", func(c *ApplicationConfig) { c.Kafka.AuditTopic = "" }, "kafka.audit_topic"},
		{"kafka not needed without audit", func(c *ApplicationConfig) {
			c.Pipelines.Audit.Enabled = false
			c.Kafka = KafkaConfig{}
		}, ""},
		{"bad format", func(c *ApplicationConfig) { c.Storage.Format = "csv" }, "storage.format"},
		{"avro rejects snappy", func(c *ApplicationConfig) {
			c.Storage.Format = "avro"
			c.Storage.Compression = "snappy"
		}, "storage.compression"},
		{"avro codec checked too", func(c *ApplicationConfig) {
			c.Storage.Format = "avro"
			c.Avro.Codec = "zstd"
		}, "storage.compression"},
		{"unknown parquet compression", func(c *ApplicationConfig) { c.Parquet.Compression = "brotli" }, "storage.compression"},
		{"parquet zstd", func(c *ApplicationConfig) { c.Storage.Compression = "ZSTD" }, ""},
		{"compression not checked without archive", func(c *ApplicationConfig) {
			c.Pipelines.Archive.Enabled = false
			c.Storage.Compression = "brotli"
		}, ""},
		{"bad rotation strategy", func(c *ApplicationConfig) { c.FileRotation.Strategy = "most" }, "file_rotation.strategy"},
		{"negative burst", func(c *ApplicationConfig) { c.RateLimit.Burst = -1 }, "ratelimit"},
		{"bad metrics port", func(c *ApplicationConfig) { c.Observability.Metrics.Port = 0 }, "observability.metrics.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}

			var configErr *apperrors.InvalidConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Validate() error = %v, want InvalidConfigError", err)
			}
			if configErr.Field != tt.field {
				t.Errorf("Field = %s, want %s", configErr.Field, tt.field)
			}
		})
	}
}

func TestApplicationConfig_ArchiveEncoding(t *testing.T) {
	tests := []struct {
		name            string
		config          ApplicationConfig
		wantFormat      event.FileFormat
		wantCompression string
	}{
		{"parquet default", ApplicationConfig{Storage: StorageConfig{Format: "parquet"}}, event.FormatParquet, ""},
		{"parquet section", ApplicationConfig{
			Storage: StorageConfig{Format: "parquet"},
			Parquet: ParquetConfig{Compression: "gzip"},
			Avro:    AvroConfig{Codec: "uncompressed"},
		}, event.FormatParquet, "gzip"},
		{"avro section", ApplicationConfig{
			Storage: StorageConfig{Format: "avro"},
			Parquet: ParquetConfig{Compression: "gzip"},
			Avro:    AvroConfig{Codec: "uncompressed"},
		}, event.FormatAvro, "uncompressed"},
		{"storage override", ApplicationConfig{
			Storage: StorageConfig{Format: "avro", Compression: "gzip"},
			Avro:    AvroConfig{Codec: "uncompressed"},
		}, event.FormatAvro, "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, compression := tt.config.ArchiveEncoding()
			if format != tt.wantFormat {
				t.Errorf("format = %s, want %s", format, tt.wantFormat)
			}
			if compression != tt.wantCompression {
				t.Errorf("compression = %q, want %q", compression, tt.wantCompression)
			}
		})
	}
}

func TestStorageConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config StorageConfig
		field  string
	}{
		{"s3", StorageConfig{Backend: "s3", Format: "parquet", S3: S3Config{Bucket: "b", Region: "us-east-1"}}, ""},
		{"s3 missing bucket", StorageConfig{Backend: "s3", Format: "parquet"}, "storage.s3.bucket"},
		{"azure", StorageConfig{Backend: "azure", Format: "avro", Azure: AzureConfig{AccountName: "a", Container: "c"}}, ""},
		{"azure missing container", StorageConfig{Backend: "azure", Format: "avro", Azure: AzureConfig{AccountName: "a"}}, "storage.azure.container"},
		{"gcs", StorageConfig{Backend: "gcs", Format: "parquet", GCS: GCSConfig{Bucket: "b"}}, ""},
		{"gcs missing bucket", StorageConfig{Backend: "gcs", Format: "parquet"}, "storage.gcs.bucket"},
		{"file missing path", StorageConfig{Backend: "file", Format: "parquet"}, "storage.file.base_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			var configErr *apperrors.InvalidConfigError
			if !errors.As(err, &configErr) || configErr.Field != tt.field {
				t.Errorf("Validate() error = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestStorageConfig_Location(t *testing.T) {
	tests := []struct {
		config       StorageConfig
		wantProtocol string
		wantBucket   string
	}{
		{StorageConfig{Backend: "s3", S3: S3Config{Bucket: "audit"}}, "s3", "audit"},
		{StorageConfig{Backend: "azure", Azure: AzureConfig{Container: "logs"}}, "wasbs", "logs"},
		{StorageConfig{Backend: "gcs", GCS: GCSConfig{Bucket: "g"}}, "gs", "g"},
		{StorageConfig{Backend: "file"}, "file", "local"},
	}

	for _, tt := range tests {
		t.Run(tt.config.Backend, func(t *testing.T) {
			protocol, bucket := tt.config.Location()
			if protocol != tt.wantProtocol || bucket != tt.wantBucket {
				t.Errorf("Location() = %s, %s, want %s, %s", protocol, bucket, tt.wantProtocol, tt.wantBucket)
			}
		})
	}
}

func TestPipelinesConfig_All(t *testing.T) {
	var p PipelinesConfig
	all := p.All()
	if len(all) != 5 {
		t.Fatalf("len(All()) = %d, want 5", len(all))
	}
	all["rpc"].Enabled = true
	if !p.RPC.Enabled {
		t.Error("All() should return pointers into the config")
	}
}
