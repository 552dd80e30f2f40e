package table

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/deepskill/pgnconv/pkg/models"
)

const defaultBufferSize = 1024 * 1024

// CSVWriter writes RFC 4180 CSV. Absent and empty values both become empty
// cells.
type CSVWriter struct {
	dst     io.WriteCloser
	w       *csv.Writer
	columns []string
	record  []string

	headerWritten bool
	closed        bool
	rows          int64
}

// NewCSVWriter creates a CSV writer on dst
func NewCSVWriter(dst io.WriteCloser, opts Options) *CSVWriter {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	// csv.NewWriter reuses a *bufio.Writer that is already large enough,
	// so Flush drains this buffer directly.
	return &CSVWriter{
		dst:     dst,
		w:       csv.NewWriter(bufio.NewWriterSize(dst, size)),
		columns: opts.Columns,
		record:  make([]string, len(opts.Columns)),
	}
}

// WriteHeader writes the column names and flushes them
func (c *CSVWriter) WriteHeader() error {
	if c.closed {
		return ErrClosed
	}
	if c.headerWritten {
		return ErrHeaderWritten
	}
	if err := c.w.Write(c.columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("failed to flush header: %w", err)
	}
	c.headerWritten = true
	return nil
}

// WriteRow writes one game
func (c *CSVWriter) WriteRow(rec *models.GameRecord) error {
	if c.closed {
		return ErrClosed
	}
	if !c.headerWritten {
		return ErrHeaderMissing
	}
	if rec.Len() != len(c.columns) {
		return fmt.Errorf("%w: got %d, want %d", ErrRowWidth, rec.Len(), len(c.columns))
	}

	for i, v := range rec.Values {
		c.record[i] = string(v)
	}
	if err := c.w.Write(c.record); err != nil {
		return fmt.Errorf("failed to write row %d: %w", c.rows+1, err)
	}
	c.rows++
	return nil
}

// Rows returns the number of data rows written
func (c *CSVWriter) Rows() int64 {
	return c.rows
}

// Close flushes buffered rows and closes the destination. It is safe to
// call more than once.
func (c *CSVWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	c.w.Flush()
	flushErr := c.w.Error()
	closeErr := c.dst.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush csv: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close csv destination: %w", closeErr)
	}
	return nil
}
