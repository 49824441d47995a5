package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

func TestNewFileWriter(t *testing.T) {
	tests := []struct {
		name    string
		format  event.FileFormat
		wantErr bool
	}{
		{"parquet", event.FormatParquet, false},
		{"avro", event.FormatAvro, false},
		{"unsupported", event.FileFormat("csv"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := filepath.Join(t.TempDir(), "nested", "archive")
			_, err := NewFileWriter(FileConfig{BasePath: base}, tt.format, "", testLogger(), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFileWriter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if _, statErr := os.Stat(base); statErr != nil {
				t.Errorf("base path not created: %v", statErr)
			}
		})
	}
}

func TestFileWriter_Write(t *testing.T) {
	base := t.TempDir()
	metrics := newMockMetrics()
	writer, err := NewFileWriter(FileConfig{BasePath: base}, event.FormatParquet, "snappy", testLogger(), metrics)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	path := NewRouter("file", "local", "audit", "v1").Route(event.StreamID{Plugin: "sign", Shard: 1}, 0, "1.0")
	size, err := writer.Write(context.Background(), testRecords(3), path, event.FormatParquet)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if size <= 0 {
		t.Errorf("Write() size = %d, want positive", size)
	}

	dir := filepath.Join(base, "audit", "sign", "v10", "dt=1970-01-01", "shard=1")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error = %v", dir, err)
	}
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".parquet") {
		t.Errorf("entries = %v, want one parquet file", entries)
	}

	if got := metrics.filesWritten["sign/parquet/success"]; got != 1 {
		t.Errorf("files written = %d, want 1", got)
	}
	if metrics.durations != 1 {
		t.Errorf("durations observed = %d, want 1", metrics.durations)
	}
}

func TestFileWriter_WriteSeparateFiles(t *testing.T) {
	base := t.TempDir()
	writer, err := NewFileWriter(FileConfig{BasePath: base}, event.FormatAvro, "gzip", testLogger(), nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := writer.Write(context.Background(), testRecords(1), "sign/", event.FormatAvro); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(base, "sign"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("files = %d, want 3", len(entries))
	}
}

func TestFileWriter_WriteErrors(t *testing.T) {
	writer, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, event.FormatParquet, "", testLogger(), nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	ctx := context.Background()

	if _, err := writer.Write(ctx, nil, "sign/", event.FormatParquet); err == nil {
		t.Error("Write(nil) expected error")
	}

	_, err = writer.Write(ctx, testRecords(1), "../../escape/", event.FormatParquet)
	var storageErr *apperrors.StorageError
	if !errors.As(err, &storageErr) {
		t.Errorf("Write() escaping path error = %v, want StorageError", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := writer.Write(cancelled, testRecords(1), "sign/", event.FormatParquet); !errors.Is(err, context.Canceled) {
		t.Errorf("Write() with cancelled context error = %v", err)
	}
}

func TestFileWriter_Close(t *testing.T) {
	writer, err := NewFileWriter(FileConfig{BasePath: t.TempDir()}, event.FormatParquet, "", testLogger(), nil)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	_, err = writer.Write(context.Background(), testRecords(1), "sign/", event.FormatParquet)
	if !errors.Is(err, apperrors.ErrWriterClosed) {
		t.Errorf("Write() after Close error = %v, want ErrWriterClosed", err)
	}
}
