package table

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepskill/pgnconv/pkg/models"
)

// readColumns returns every column as a slice of optional strings.
func readColumns(t *testing.T, data []byte) ([]string, [][]*string) {
	t.Helper()

	tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(memory.DefaultAllocator), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer tbl.Release()

	names := make([]string, tbl.NumCols())
	cols := make([][]*string, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		names[i] = col.Name()
		for _, chunk := range col.Data().Chunks() {
			arr := chunk.(*array.String)
			for j := 0; j < arr.Len(); j++ {
				if arr.IsNull(j) {
					cols[i] = append(cols[i], nil)
					continue
				}
				v := arr.Value(j)
				cols[i] = append(cols[i], &v)
			}
		}
	}
	return names, cols
}

func strPtr(s string) *string { return &s }

func TestParquetWriter_NullVersusEmpty(t *testing.T) {
	dst := &bufferCloser{}
	w, err := NewParquetWriter(dst, Options{Columns: testColumns})
	require.NoError(t, err)

	require.NoError(t, w.WriteHeader())

	first := models.NewGameRecord(len(testColumns))
	first.Set(0, []byte("Rated Blitz"))
	first.Set(1, []byte("alice"))
	first.Set(3, []byte("1-0"))
	require.NoError(t, w.WriteRow(first))

	second := models.NewGameRecord(len(testColumns))
	second.Set(2, []byte(""))
	require.NoError(t, w.WriteRow(second))

	require.NoError(t, w.Close())
	assert.Equal(t, 1, dst.closed)
	assert.Equal(t, int64(2), w.Rows())

	names, cols := readColumns(t, dst.Bytes())
	assert.Equal(t, testColumns, names)
	assert.Equal(t, []*string{strPtr("Rated Blitz"), nil}, cols[0])
	assert.Equal(t, []*string{strPtr("alice"), nil}, cols[1])
	assert.Equal(t, []*string{nil, strPtr("")}, cols[2])
	assert.Equal(t, []*string{strPtr("1-0"), nil}, cols[3])
}

func TestParquetWriter_RowGroups(t *testing.T) {
	dst := &bufferCloser{}
	w, err := NewParquetWriter(dst, Options{Columns: testColumns, RowGroupSize: 10, Compression: "zstd"})
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader())

	for i := 0; i < 25; i++ {
		require.NoError(t, w.WriteRow(record("Rated Blitz", "alice", "bob", "0-1")))
	}
	require.NoError(t, w.Close())

	pf, err := file.NewParquetReader(bytes.NewReader(dst.Bytes()))
	require.NoError(t, err)
	defer pf.Close()

	assert.Equal(t, int64(25), pf.NumRows())
	assert.Equal(t, 3, pf.NumRowGroups())
}

func TestParquetWriter_InvalidUTF8(t *testing.T) {
	dst := &bufferCloser{}
	w, err := NewParquetWriter(dst, Options{Columns: testColumns})
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteRow(record("Open", "Jos\xe9", "bob", "1-0")))
	require.NoError(t, w.Close())

	_, cols := readColumns(t, dst.Bytes())
	assert.Equal(t, "Jos�", *cols[1][0])
}

func TestParquetWriter_EmptyFile(t *testing.T) {
	dst := &bufferCloser{}
	w, err := NewParquetWriter(dst, Options{Columns: testColumns})
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.Close())

	names, cols := readColumns(t, dst.Bytes())
	assert.Equal(t, testColumns, names)
	for _, c := range cols {
		assert.Empty(t, c)
	}
}

func TestParquetWriter_HeaderContract(t *testing.T) {
	dst := &bufferCloser{}
	w, err := NewParquetWriter(dst, Options{Columns: testColumns})
	require.NoError(t, err)

	assert.ErrorIs(t, w.WriteRow(record("a", "b", "c", "d")), ErrHeaderMissing)
	require.NoError(t, w.WriteHeader())
	assert.ErrorIs(t, w.WriteHeader(), ErrHeaderWritten)
	assert.ErrorIs(t, w.WriteRow(record("a", "b")), ErrRowWidth)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 1, dst.closed)
	assert.ErrorIs(t, w.WriteRow(record("a", "b", "c", "d")), ErrClosed)
}

func TestParquetWriter_CloseWithoutHeader(t *testing.T) {
	dst := &bufferCloser{}
	w, err := NewParquetWriter(dst, Options{Columns: testColumns})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.Equal(t, 1, dst.closed)
	assert.Zero(t, dst.Len())
}
