// Package storage implements archive writers for the local filesystem and
// the S3, Azure Blob and Google Cloud Storage object stores.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jittakal/gatewaypipe/internal/encoder"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncFilesWritten(plugin string, format string, status string)
	ObserveFileSize(plugin string, format string, size float64)
	ObserveStorageWriteDuration(plugin string, duration float64)
	IncStorageErrors(backend string, operation string)
}

// fileSequence disambiguates objects created within the same millisecond.
var fileSequence atomic.Uint32

// objectName returns a timestamped object name: audit_YYYYMMDD_HHMMSS_mmm_NNNN{ext}.
func objectName(now time.Time, ext string) string {
	seq := fileSequence.Add(1) % 10000
	return fmt.Sprintf("audit_%s_%03d_%04d%s",
		now.UTC().Format("20060102_150405"), now.Nanosecond()/1000000, seq, ext)
}

// objectKey strips "scheme://bucket/" from a routed path and appends name.
// Paths without the scheme are taken as keys relative to the bucket.
func objectKey(path, scheme, name string) string {
	key := path
	if rest, ok := strings.CutPrefix(path, scheme+"://"); ok {
		if _, after, found := strings.Cut(rest, "/"); found {
			key = after
		} else {
			key = ""
		}
	}
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return strings.TrimPrefix(key+name, "/")
}

// writeReport carries the observations of one successful write.
type writeReport struct {
	records  []event.Record
	format   event.FileFormat
	size     int64
	duration time.Duration
}

func recordSuccess(m MetricsCollector, r writeReport) {
	if m == nil || len(r.records) == 0 {
		return
	}
	plugin := r.records[0].Gateway.Plugin
	m.IncFilesWritten(plugin, string(r.format), "success")
	m.ObserveFileSize(plugin, string(r.format), float64(r.size))
	m.ObserveStorageWriteDuration(plugin, r.duration.Seconds())
}

func recordError(m MetricsCollector, backend, op string) {
	if m != nil {
		m.IncStorageErrors(backend, op)
	}
}

// encodeTemp encodes records into a temporary file for upload.
// The caller removes the returned file.
func encodeTemp(factory *encoder.Factory, backend string, records []event.Record) (string, string, *event.FileStats, error) {
	enc, err := factory.CreateEncoder()
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	tempFile := filepath.Join(os.TempDir(),
		fmt.Sprintf("%s-upload-%d-%d%s", backend, time.Now().UnixNano(), fileSequence.Add(1), enc.FileExtension()))

	stats, err := enc.Encode(tempFile, records)
	if err != nil {
		os.Remove(tempFile)
		return "", "", nil, fmt.Errorf("failed to encode records: %w", err)
	}
	return tempFile, enc.FileExtension(), stats, nil
}

// newEncoderFactory builds an encoder factory for a writer.
func newEncoderFactory(format event.FileFormat, compression string) (*encoder.Factory, error) {
	factory, err := encoder.NewFactory(format, compression)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	return factory, nil
}

// contentType returns the MIME type stored with archived objects.
func contentType(format event.FileFormat) string {
	if format == event.FormatAvro {
		return "application/avro"
	}
	return "application/octet-stream"
}
