package storage

import (
	"fmt"

	"github.com/deepskill/pgnconv/internal/config"
	"github.com/rs/zerolog"
)

// New builds the backend selected by cfg.Backend. localRoot is the base
// directory of the local backend and is ignored by the object stores.
func New(cfg *config.StorageConfig, localRoot string, logger zerolog.Logger) (Backend, error) {
	switch cfg.Backend {
	case "", TypeLocal:
		backend, err := NewLocalBackend(localRoot, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		logger.Info().Str("path", backend.GetBasePath()).Msg("Local storage initialized")
		return backend, nil

	case TypeS3, "minio":
		backend, err := NewS3Backend(&S3Config{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		logger.Info().
			Str("bucket", backend.GetBucket()).
			Str("region", cfg.S3Region).
			Str("endpoint", cfg.S3Endpoint).
			Msg("S3 storage initialized")
		return backend, nil

	case TypeAzure, "azblob":
		backend, err := NewAzureBlobBackend(&AzureBlobConfig{
			ConnectionString:   cfg.AzureConnectionString,
			AccountName:        cfg.AzureAccountName,
			AccountKey:         cfg.AzureAccountKey,
			SASToken:           cfg.AzureSASToken,
			UseManagedIdentity: cfg.AzureUseManagedIdentity,
			ContainerName:      cfg.AzureContainer,
			Prefix:             cfg.AzurePrefix,
			Endpoint:           cfg.AzureEndpoint,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Azure storage: %w", err)
		}
		logger.Info().
			Str("container", backend.GetContainer()).
			Str("account", cfg.AzureAccountName).
			Msg("Azure Blob storage initialized")
		return backend, nil

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: local, s3, minio, azure, azblob)", cfg.Backend)
	}
}
