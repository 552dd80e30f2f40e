package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/deepskill/pgnconv/pkg/models"
)

const defaultRowGroupSize = 100_000

// sharedAllocator is safe for concurrent use by writers on different files.
var sharedAllocator = memory.NewGoAllocator()

// ParquetWriter writes nullable UTF8 columns. Unlike CSV it keeps absent
// tags (NULL) apart from empty ones ("").
type ParquetWriter struct {
	dst     io.WriteCloser
	schema  *arrow.Schema
	builder *array.RecordBuilder
	fw      *pqarrow.FileWriter
	props   *parquet.WriterProperties

	rowGroupSize int
	pending      int

	headerWritten bool
	closed        bool
	rows          int64
}

// NewParquetWriter creates a Parquet writer on dst
func NewParquetWriter(dst io.WriteCloser, opts Options) (*ParquetWriter, error) {
	comp, err := parseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}

	rowGroupSize := opts.RowGroupSize
	if rowGroupSize <= 0 {
		rowGroupSize = defaultRowGroupSize
	}

	fields := make([]arrow.Field, len(opts.Columns))
	for i, name := range opts.Columns {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	return &ParquetWriter{
		dst:    dst,
		schema: schema,
		props: parquet.NewWriterProperties(
			parquet.WithCompression(comp),
			parquet.WithDictionaryDefault(true),
			parquet.WithStats(true),
			parquet.WithMaxRowGroupLength(int64(rowGroupSize)),
		),
		rowGroupSize: rowGroupSize,
	}, nil
}

func parseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return compress.Codecs.Snappy, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("table: unsupported parquet compression %q", name)
	}
}

// WriteHeader starts the Parquet file. The column names are carried in the
// file schema.
func (p *ParquetWriter) WriteHeader() error {
	if p.closed {
		return ErrClosed
	}
	if p.headerWritten {
		return ErrHeaderWritten
	}

	// The file writer closes its sink on Close; dst is closed separately.
	fw, err := pqarrow.NewFileWriter(
		p.schema,
		writerOnly{p.dst},
		p.props,
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()),
	)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	p.fw = fw
	p.builder = array.NewRecordBuilder(sharedAllocator, p.schema)
	p.headerWritten = true
	return nil
}

// WriteRow buffers one game and writes a row group when the batch is full
func (p *ParquetWriter) WriteRow(rec *models.GameRecord) error {
	if p.closed {
		return ErrClosed
	}
	if !p.headerWritten {
		return ErrHeaderMissing
	}
	if rec.Len() != len(p.schema.Fields()) {
		return fmt.Errorf("%w: got %d, want %d", ErrRowWidth, rec.Len(), len(p.schema.Fields()))
	}

	for i, v := range rec.Values {
		b := p.builder.Field(i).(*array.StringBuilder)
		if !rec.Present[i] {
			b.AppendNull()
			continue
		}
		b.Append(sanitizeUTF8(v))
	}
	p.pending++
	p.rows++

	if p.pending >= p.rowGroupSize {
		return p.flush()
	}
	return nil
}

func (p *ParquetWriter) flush() error {
	if p.pending == 0 {
		return nil
	}
	rec := p.builder.NewRecord()
	defer rec.Release()
	p.pending = 0

	if err := p.fw.Write(rec); err != nil {
		return fmt.Errorf("failed to write row group: %w", err)
	}
	return nil
}

// Rows returns the number of data rows written
func (p *ParquetWriter) Rows() int64 {
	return p.rows
}

// Close writes pending rows and the file footer, then closes the
// destination. It is safe to call more than once.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var firstErr error
	if p.fw != nil {
		if err := p.flush(); err != nil {
			firstErr = err
		}
		if err := p.fw.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close parquet writer: %w", err)
		}
	}
	if p.builder != nil {
		p.builder.Release()
	}
	if err := p.dst.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close parquet destination: %w", err)
	}
	return firstErr
}

// writerOnly hides Close from the parquet file writer.
type writerOnly struct {
	w io.Writer
}

func (w writerOnly) Write(p []byte) (int, error) {
	return w.w.Write(p)
}
