package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for pgnconv
type Config struct {
	Data     DataConfig
	Storage  StorageConfig
	Convert  ConvertConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Shutdown ShutdownConfig
}

// DataConfig locates archives and tables relative to the storage root
type DataConfig struct {
	Root         string `cfg:"data.root" validate:"required"`
	RawDir       string `cfg:"data.raw_dir" validate:"required"`
	ProcessedDir string `cfg:"data.processed_dir" validate:"required,nefield=RawDir"`
}

type StorageConfig struct {
	Backend string `cfg:"storage.backend" validate:"oneof=local s3 minio azure azblob"`
	// S3/MinIO configuration
	S3Bucket    string `cfg:"storage.s3_bucket" validate:"required_if=Backend s3,required_if=Backend minio"`
	S3Prefix    string // Key prefix standing in for data.root
	S3Region    string
	S3Endpoint  string // Custom endpoint for MinIO (e.g., "http://localhost:9000")
	S3AccessKey string // AWS access key (or use AWS_ACCESS_KEY_ID env var)
	S3SecretKey string // AWS secret key (or use AWS_SECRET_ACCESS_KEY env var)
	S3UseSSL    bool   // Use HTTPS for S3 connections
	S3PathStyle bool   // Use path-style addressing (required for MinIO)
	// Azure Blob Storage configuration
	AzureConnectionString   string // Connection string (simplest auth method)
	AzureAccountName        string // Storage account name
	AzureAccountKey         string // Storage account key
	AzureSASToken           string // SAS token for scoped access
	AzureContainer          string `cfg:"storage.azure_container" validate:"required_if=Backend azure,required_if=Backend azblob"`
	AzurePrefix             string // Blob name prefix standing in for data.root
	AzureEndpoint           string // Custom endpoint (for Azurite testing)
	AzureUseManagedIdentity bool   // Use managed identity (Azure-hosted deployments)
}

type ConvertConfig struct {
	Format              string `cfg:"convert.format" validate:"oneof=csv parquet"`
	Workers             int    `cfg:"convert.workers" validate:"min=1,max=256"`
	ProgressInterval    int64  `cfg:"convert.progress_interval" validate:"min=1"`
	ReadBufferSize      int64  `cfg:"convert.read_buffer_size" validate:"min=4096"`
	WriteBufferSize     int64  `cfg:"convert.write_buffer_size" validate:"min=4096"`
	Overwrite           bool   // Replace existing tables (default true)
	ParquetCompression  string `cfg:"convert.parquet_compression" validate:"oneof=snappy zstd gzip none uncompressed"`
	ParquetRowGroupSize int    `cfg:"convert.parquet_row_group_size" validate:"min=1"`
}

type LogConfig struct {
	Level  string `cfg:"log.level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `cfg:"log.format" validate:"oneof=json console"`
}

type MetricsConfig struct {
	// TextfilePath receives the run's counters in Prometheus text format
	// when set (node_exporter textfile collector)
	TextfilePath string
}

type ShutdownConfig struct {
	TimeoutSeconds int `cfg:"shutdown.timeout_seconds" validate:"min=1"`
}

// Load loads configuration from defaults, an optional TOML file and the
// environment. When path is empty the usual locations are searched and a
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("PGNCONV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("pgnconv")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pgnconv/")
		v.AddConfigPath("$HOME/.pgnconv/")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			// Config file not found is OK, use defaults
		}
	}

	readBufferSize, err := ParseSize(v.GetString("convert.read_buffer_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid convert.read_buffer_size: %w", err)
	}
	writeBufferSize, err := ParseSize(v.GetString("convert.write_buffer_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid convert.write_buffer_size: %w", err)
	}

	cfg := &Config{
		Data: DataConfig{
			Root:         v.GetString("data.root"),
			RawDir:       v.GetString("data.raw_dir"),
			ProcessedDir: v.GetString("data.processed_dir"),
		},
		Storage: StorageConfig{
			Backend:     strings.ToLower(v.GetString("storage.backend")),
			S3Bucket:    v.GetString("storage.s3_bucket"),
			S3Prefix:    v.GetString("storage.s3_prefix"),
			S3Region:    v.GetString("storage.s3_region"),
			S3Endpoint:  v.GetString("storage.s3_endpoint"),
			S3AccessKey: v.GetString("storage.s3_access_key"),
			S3SecretKey: v.GetString("storage.s3_secret_key"),
			S3UseSSL:    v.GetBool("storage.s3_use_ssl"),
			S3PathStyle: v.GetBool("storage.s3_path_style"),

			AzureConnectionString:   v.GetString("storage.azure_connection_string"),
			AzureAccountName:        v.GetString("storage.azure_account_name"),
			AzureAccountKey:         v.GetString("storage.azure_account_key"),
			AzureSASToken:           v.GetString("storage.azure_sas_token"),
			AzureContainer:          v.GetString("storage.azure_container"),
			AzurePrefix:             v.GetString("storage.azure_prefix"),
			AzureEndpoint:           v.GetString("storage.azure_endpoint"),
			AzureUseManagedIdentity: v.GetBool("storage.azure_use_managed_identity"),
		},
		Convert: ConvertConfig{
			Format:              strings.ToLower(v.GetString("convert.format")),
			Workers:             v.GetInt("convert.workers"),
			ProgressInterval:    v.GetInt64("convert.progress_interval"),
			ReadBufferSize:      readBufferSize,
			WriteBufferSize:     writeBufferSize,
			Overwrite:           v.GetBool("convert.overwrite"),
			ParquetCompression:  strings.ToLower(v.GetString("convert.parquet_compression")),
			ParquetRowGroupSize: v.GetInt("convert.parquet_row_group_size"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Metrics: MetricsConfig{
			TextfilePath: v.GetString("metrics.textfile_path"),
		},
		Shutdown: ShutdownConfig{
			TimeoutSeconds: v.GetInt("shutdown.timeout_seconds"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Data layout defaults
	v.SetDefault("data.root", "./data")
	v.SetDefault("data.raw_dir", "raw")
	v.SetDefault("data.processed_dir", "processed")

	// Storage defaults
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_use_ssl", true)
	v.SetDefault("storage.s3_path_style", false) // Use virtual-hosted style by default (set true for MinIO)

	// Conversion defaults
	v.SetDefault("convert.format", "csv")
	v.SetDefault("convert.workers", 1) // Sequential, one archive at a time
	v.SetDefault("convert.progress_interval", 100000)
	v.SetDefault("convert.read_buffer_size", "1MB")
	v.SetDefault("convert.write_buffer_size", "1MB")
	v.SetDefault("convert.overwrite", true)
	v.SetDefault("convert.parquet_compression", "snappy")
	v.SetDefault("convert.parquet_row_group_size", 100000)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Metrics defaults
	v.SetDefault("metrics.textfile_path", "")

	// Shutdown defaults
	v.SetDefault("shutdown.timeout_seconds", 30)
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "100KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive).
// Returns the size in bytes or an error if the format is invalid.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Define multipliers (order matters: check longer suffixes first)
	type unitInfo struct {
		suffix     string
		multiplier int64
	}
	units := []unitInfo{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			numStr := strings.TrimSuffix(sizeStr, unit.suffix)
			numStr = strings.TrimSpace(numStr)

			// Ensure the remaining string is a valid number (no trailing non-numeric chars)
			var num float64
			var trailing string
			n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
			if n == 0 {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			if trailing != "" {
				// Extra text after the number, likely an unrecognized unit like "T" in "1TB"
				return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
			}
			if num < 0 {
				return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
			}
			return int64(num * float64(unit.multiplier)), nil
		}
	}

	// Try parsing as plain number (bytes)
	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}
