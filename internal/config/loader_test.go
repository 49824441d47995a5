package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test config file: %v", err)
	}
	return path
}

func TestLoader_LoadWithValidConfig(t *testing.T) {
	path := writeConfig(t, `
application:
  name: edge-gateway

pipelines:
  audit:
    enabled: true
    buffer_size: 1024
    consumer_count: 4
    executor:
      workers: 8
      queue_policy: drop
      queue_capacity: 500
      task_timeout_ms: 250
  archive:
    enabled: true

kafka:
  bootstrap_servers:
    - localhost:9092
  audit_topic: edge-audit

storage:
  backend: file
  format: avro
  file:
    base_path: /tmp/archive
`)

	config, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Application.Name != "edge-gateway" {
		t.Errorf("Application.Name = %s, want edge-gateway", config.Application.Name)
	}
	audit := config.Pipelines.Audit
	if !audit.Enabled || audit.BufferSize != 1024 || audit.ConsumerCount != 4 {
		t.Errorf("Pipelines.Audit = %+v", audit)
	}
	if audit.Executor.QueuePolicy != "drop" || audit.Executor.QueueCapacity != 500 {
		t.Errorf("Pipelines.Audit.Executor = %+v", audit.Executor)
	}
	if audit.Executor.TaskTimeout().Milliseconds() != 250 {
		t.Errorf("TaskTimeout() = %v, want 250ms", audit.Executor.TaskTimeout())
	}
	if config.Kafka.AuditTopic != "edge-audit" {
		t.Errorf("Kafka.AuditTopic = %s, want edge-audit", config.Kafka.AuditTopic)
	}
	if config.Storage.Format != "avro" || config.Storage.File.BasePath != "/tmp/archive" {
		t.Errorf("Storage = %+v", config.Storage)
	}

	// Defaults for sections not in the file
	if config.Pipelines.Archive.WaitStrategy != "blocking" {
		t.Errorf("Pipelines.Archive.WaitStrategy = %s, want blocking", config.Pipelines.Archive.WaitStrategy)
	}
	if config.Pipelines.RPC.Enabled {
		t.Error("Pipelines.RPC should be disabled by default")
	}
	if !config.Pipelines.Metrics.Enabled {
		t.Error("Pipelines.Metrics should be enabled by default")
	}
	if config.RPC.CacheSize != 1000 {
		t.Errorf("RPC.CacheSize = %d, want 1000", config.RPC.CacheSize)
	}
	if config.Shutdown.GracePeriod().Seconds() != 30 {
		t.Errorf("Shutdown.GracePeriod() = %v, want 30s", config.Shutdown.GracePeriod())
	}
}

func TestLoader_LoadWithMissingFile(t *testing.T) {
	config, err := NewLoader().Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v, want defaults", err)
	}
	if config.Application.Name != "gatewaypipe" {
		t.Errorf("Application.Name = %s, want gatewaypipe", config.Application.Name)
	}
	if config.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %s, want file", config.Storage.Backend)
	}
}

func TestLoader_LoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "pipelines: [unclosed")
	if _, err := NewLoader().Load(path); err == nil {
		t.Error("Load() expected error for malformed YAML")
	}
}

func TestLoader_EnvironmentOverrides(t *testing.T) {
	t.Setenv("APP_KAFKA_AUDIT_TOPIC", "from-env")
	t.Setenv("APP_PIPELINES_AUDIT_CONSUMER_COUNT", "3")
	t.Setenv("GATEWAY_BROKER", "broker-1:9092")

	path := writeConfig(t, `
pipelines:
  audit:
    enabled: true
kafka:
  bootstrap_servers:
    - ${GATEWAY_BROKER}
`)

	config, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Kafka.AuditTopic != "from-env" {
		t.Errorf("Kafka.AuditTopic = %s, want from-env", config.Kafka.AuditTopic)
	}
	if config.Pipelines.Audit.ConsumerCount != 3 {
		t.Errorf("Pipelines.Audit.ConsumerCount = %d, want 3", config.Pipelines.Audit.ConsumerCount)
	}
	if len(config.Kafka.BootstrapServers) != 1 || config.Kafka.BootstrapServers[0] != "broker-1:9092" {
		t.Errorf("Kafka.BootstrapServers = %v, want [broker-1:9092]", config.Kafka.BootstrapServers)
	}
}

func TestLoader_LoadInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{
			name: "buffer size not a power of two",
			content: `
pipelines:
  metrics:
    buffer_size: 1000
`,
			field: "pipelines.metrics.buffer_size",
		},
		{
			name: "audit without brokers",
			content: `
pipelines:
  audit:
    enabled: true
`,
			field: "kafka.bootstrap_servers",
		},
		{
			name: "archive with unknown backend",
			content: `
pipelines:
  archive:
    enabled: true
storage:
  backend: ftp
`,
			field: "storage.backend",
		},
		{
			name: "s3 without region",
			content: `
pipelines:
  archive:
    enabled: true
storage:
  backend: s3
  s3:
    bucket: audit
`,
			field: "storage.s3.region",
		},
		{
			name: "bad health port",
			content: `
observability:
  health:
    port: 70000
`,
			field: "observability.health.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Load(writeConfig(t, tt.content))
			var configErr *apperrors.InvalidConfigError
			if !errors.As(err, &configErr) {
				t.Fatalf("Load() error = %v, want InvalidConfigError", err)
			}
			if configErr.Field != tt.field {
				t.Errorf("Field = %s, want %s", configErr.Field, tt.field)
			}
		})
	}
}
