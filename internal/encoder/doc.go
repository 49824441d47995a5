// Package encoder writes archived audit records as Parquet or Avro files.
//
// Both formats share one flattened row, AuditRow: the CloudEvents attributes
// and data of the audit event followed by the gateway request columns
// (plugin, route, method, status, latency, client address, request time) and
// the time the archive sink accepted the record. Parquet rows come straight
// from the AuditRow struct tags; the Avro schema mirrors the same columns.
//
// The archive sink drains a stream buffer into a temporary file through an
// Encoder and hands the file to a storage writer:
//
//	factory, err := encoder.NewFactory(event.FormatParquet, "zstd")
//	if err != nil {
//		return err
//	}
//	enc, err := factory.CreateEncoder()
//	if err != nil {
//		return err
//	}
//	stats, err := enc.Encode(tmpPath, records)
//
// ResolveCompression is the single list of accepted codecs. Configuration
// validation and NewFactory both use it, so an unsupported storage.compression
// fails at startup instead of silently falling back. Avro gzip compresses the
// whole container file and names it ".avro.gz".
package encoder
