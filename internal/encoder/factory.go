package encoder

import (
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
	"github.com/jittakal/gatewaypipe/pkg/encoder"
	"github.com/jittakal/gatewaypipe/pkg/event"
)

// codecs lists the compressions each archive format accepts. The first one is
// the format default.
var codecs = map[event.FileFormat][]string{
	event.FormatParquet: {"snappy", "gzip", "lz4", "zstd", "uncompressed"},
	event.FormatAvro:    {"gzip", "uncompressed"},
}

// ResolveCompression checks compression against format and returns its
// canonical name. An empty compression selects the format default and "none"
// means uncompressed.
func ResolveCompression(format event.FileFormat, compression string) (string, error) {
	supported, ok := codecs[format]
	if !ok {
		return "", &apperrors.InvalidConfigError{
			Field:  "storage.format",
			Value:  string(format),
			Reason: "must be parquet or avro",
		}
	}
	if compression == "" {
		return supported[0], nil
	}

	name := strings.ToLower(compression)
	if name == "none" {
		name = "uncompressed"
	}
	if !slices.Contains(supported, name) {
		return "", &apperrors.InvalidConfigError{
			Field:  "storage.compression",
			Value:  compression,
			Reason: fmt.Sprintf("%s supports %s", format, strings.Join(supported, ", ")),
		}
	}
	return name, nil
}

// Factory creates the encoders of one archive stream. Every Create call
// returns an independent encoder.
type Factory struct {
	format      event.FileFormat
	compression string
}

// NewFactory validates format and compression.
func NewFactory(format event.FileFormat, compression string) (*Factory, error) {
	name, err := ResolveCompression(format, compression)
	if err != nil {
		return nil, err
	}
	return &Factory{format: format, compression: name}, nil
}

// Format returns the archive file format.
func (f *Factory) Format() event.FileFormat {
	return f.format
}

// Compression returns the canonical compression name.
func (f *Factory) Compression() string {
	return f.compression
}

// CreateEncoder returns a new encoder for the factory's format.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	if f.format == event.FormatAvro {
		return NewAvroEncoder(f.compression)
	}
	return NewParquetEncoder(f.compression), nil
}
