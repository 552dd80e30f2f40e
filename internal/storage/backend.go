package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"
)

// ErrNotFound is returned by Open when no object exists at the path. It
// matches fs.ErrNotExist for every backend.
var ErrNotFound = fmt.Errorf("object not found: %w", fs.ErrNotExist)

// Backend identifiers accepted by New
const (
	TypeLocal = "local"
	TypeS3    = "s3"
	TypeAzure = "azure"
)

// Backend defines the interface for storage backends (local, S3, MinIO, Azure).
// Paths are slash separated and relative to the backend root.
type Backend interface {
	// Open returns a streaming reader for the object at path.
	// A missing object yields an error wrapping ErrNotFound.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Create returns a writer that creates or truncates the object at path.
	// Data is durable only after Close returns nil.
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// Exists checks if an object exists at the specified path
	Exists(ctx context.Context, path string) (bool, error)

	// List lists all objects below the given prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Close closes any resources held by the backend
	Close() error

	// Type returns the storage type identifier ("local", "s3", "azure")
	Type() string
}

// contentType guesses the MIME type of an output object from its name.
func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(path, ".csv"):
		return "text/csv"
	case strings.HasSuffix(path, ".zst"):
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}
