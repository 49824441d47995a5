package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jittakal/gatewaypipe/internal/config/dto"
	internalstorage "github.com/jittakal/gatewaypipe/internal/storage"
	"github.com/jittakal/gatewaypipe/pkg/event"
	"github.com/jittakal/gatewaypipe/pkg/storage"
)

// newWriter creates the storage writer of the configured backend.
func newWriter(
	ctx context.Context,
	app *dto.ApplicationConfig,
	logger *slog.Logger,
	metrics internalstorage.MetricsCollector,
) (storage.Writer, event.FileFormat, error) {
	cfg := app.Storage
	format, compression := app.ArchiveEncoding()

	var (
		writer storage.Writer
		err    error
	)
	switch cfg.Backend {
	case "file":
		writer, err = internalstorage.NewFileWriter(internalstorage.FileConfig{
			BasePath: cfg.File.BasePath,
		}, format, compression, logger, metrics)
	case "s3":
		writer, err = internalstorage.NewS3Writer(ctx, internalstorage.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
		}, format, compression, logger, metrics)
	case "azure":
		writer, err = internalstorage.NewAzureWriter(internalstorage.AzureConfig{
			AccountName:   cfg.Azure.AccountName,
			AccountKey:    cfg.Azure.AccountKey,
			ContainerName: cfg.Azure.Container,
			Endpoint:      cfg.Azure.Endpoint,
		}, format, compression, logger, metrics)
	case "gcs":
		writer, err = internalstorage.NewGCSWriter(ctx, internalstorage.GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      cfg.GCS.CredentialsJSON,
			Endpoint:             cfg.GCS.Endpoint,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		}, format, compression, logger, metrics)
	default:
		return nil, "", fmt.Errorf("unsupported storage backend: %s (supported: file, s3, azure, gcs)", cfg.Backend)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s writer: %w", cfg.Backend, err)
	}
	return writer, format, nil
}

func archiveRouter(protocol, bucket, basePath string) storage.Router {
	return internalstorage.NewRouter(protocol, bucket, basePath, "v10")
}

func rotationPolicy(cfg dto.FileRotationConfig) storage.RotationPolicy {
	return internalstorage.NewPolicy(internalstorage.PolicyConfig{
		MaxFileSizeMB:      cfg.MaxFileSizeMB,
		MaxRecordsPerFile:  cfg.MaxRecordsPerFile,
		MaxDurationSeconds: cfg.MaxDurationSeconds,
		Strategy:           cfg.Strategy,
	})
}
