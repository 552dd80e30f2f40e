// Package table writes converted games as rows of a tabular file.
package table

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/deepskill/pgnconv/pkg/models"
)

var (
	// ErrHeaderWritten is returned when WriteHeader is called twice
	ErrHeaderWritten = errors.New("table: header already written")
	// ErrHeaderMissing is returned when a row is written before the header
	ErrHeaderMissing = errors.New("table: header not written")
	// ErrRowWidth is returned when a row does not match the column count
	ErrRowWidth = errors.New("table: row width does not match columns")
	// ErrClosed is returned when writing to a closed writer
	ErrClosed = errors.New("table: writer closed")
	// ErrUnknownFormat is returned for an unsupported output format
	ErrUnknownFormat = errors.New("table: unknown format")
)

// Format is an output table format
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Extension returns the file extension including the dot
func (f Format) Extension() string {
	return "." + string(f)
}

// RowWriter serializes game records to a destination. The header must be
// written exactly once before any row. Close must always be called; it
// flushes buffered output and closes the destination.
type RowWriter interface {
	WriteHeader() error
	WriteRow(rec *models.GameRecord) error
	Rows() int64
	Close() error
}

// Options configures a RowWriter
type Options struct {
	Columns []string

	// BufferSize is the CSV write buffer size in bytes
	BufferSize int

	// Parquet settings
	Compression  string
	RowGroupSize int
}

// Open binds a RowWriter of the given format to dst. On error dst is
// left open for the caller to close.
func Open(dst io.WriteCloser, format Format, opts Options) (RowWriter, error) {
	if len(opts.Columns) == 0 {
		return nil, errors.New("table: no columns")
	}

	switch format {
	case FormatCSV:
		return NewCSVWriter(dst, opts), nil
	case FormatParquet:
		return NewParquetWriter(dst, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
