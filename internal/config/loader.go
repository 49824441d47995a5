// Package config loads gatewaypipe configuration from YAML and APP_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/gatewaypipe/internal/config/dto"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables.
// A missing file is not an error; defaults and environment apply.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	l.expandEnv()

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv expands ${VAR} references in string and string-list values.
func (l *Loader) expandEnv() {
	for _, key := range l.v.AllKeys() {
		switch value := l.v.Get(key).(type) {
		case string:
			if strings.Contains(value, "${") {
				l.v.Set(key, os.ExpandEnv(value))
			}
		case []interface{}:
			expanded := make([]interface{}, len(value))
			changed := false
			for i, item := range value {
				expanded[i] = item
				if s, ok := item.(string); ok && strings.Contains(s, "${") {
					expanded[i] = os.ExpandEnv(s)
					changed = true
				}
			}
			if changed {
				l.v.Set(key, expanded)
			}
		}
	}
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	l.v.SetDefault("application.name", "gatewaypipe")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Pipelines: zero sizes select the dispatch defaults
	for _, name := range []string{"audit", "archive", "metrics", "ratelimit", "rpc"} {
		prefix := "pipelines." + name + "."
		l.v.SetDefault(prefix+"enabled", false)
		l.v.SetDefault(prefix+"buffer_size", 0)
		l.v.SetDefault(prefix+"consumer_count", 0)
		l.v.SetDefault(prefix+"wait_strategy", "blocking")
		l.v.SetDefault(prefix+"executor.workers", 0)
		l.v.SetDefault(prefix+"executor.queue_policy", "unbounded")
		l.v.SetDefault(prefix+"executor.queue_capacity", 0)
		l.v.SetDefault(prefix+"executor.task_timeout_ms", 0)
	}
	l.v.SetDefault("pipelines.metrics.enabled", true)

	// Kafka defaults
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.audit_topic", "gateway-audit")
	l.v.SetDefault("kafka.client_id", "gatewaypipe")
	l.v.SetDefault("kafka.compression", "snappy")
	l.v.SetDefault("kafka.max_retries", 5)

	// Storage defaults
	l.v.SetDefault("storage.backend", "file")
	l.v.SetDefault("storage.format", "parquet")
	l.v.SetDefault("storage.base_path", "audit")
	l.v.SetDefault("storage.file.base_path", "./data")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", true)

	// File rotation defaults
	l.v.SetDefault("file_rotation.max_file_size_mb", 128)
	l.v.SetDefault("file_rotation.max_records_per_file", 100000)
	l.v.SetDefault("file_rotation.max_duration_seconds", 300)
	l.v.SetDefault("file_rotation.strategy", "any")

	// Archive buffering defaults
	l.v.SetDefault("archive.buffer_size_mb", 64)
	l.v.SetDefault("archive.flush_interval_seconds", 60)
	l.v.SetDefault("archive.write_timeout_seconds", 30)

	// Encoder defaults
	l.v.SetDefault("parquet.compression", "snappy")
	l.v.SetDefault("avro.codec", "gzip")

	// Rate-limit accounting defaults
	l.v.SetDefault("ratelimit.max_keys", 10000)
	l.v.SetDefault("ratelimit.tokens_per_second", 100)
	l.v.SetDefault("ratelimit.burst", 200)

	// RPC reference cache defaults
	l.v.SetDefault("rpc.cache_size", 1000)
	l.v.SetDefault("rpc.dial_timeout_ms", 3000)
	l.v.SetDefault("rpc.insecure", true)

	// Generator defaults
	l.v.SetDefault("generator.enabled", false)
	l.v.SetDefault("generator.requests_per_second", 50)
	l.v.SetDefault("generator.plugins", []string{"sign", "waf", "rate_limiter", "request_log"})
	l.v.SetDefault("generator.services", 20)
	l.v.SetDefault("generator.event_source", "/gateway")
	l.v.SetDefault("generator.event_type", "gateway.request.audited")

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")
	l.v.SetDefault("observability.health.admin_enabled", true)

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
	l.v.SetDefault("shutdown.force_timeout_seconds", 60)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	return config.Validate()
}
