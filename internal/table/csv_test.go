package table

import (
	"errors"
	"strings"
	"testing"

	"github.com/deepskill/pgnconv/pkg/models"
)

func TestCSVWriter_Rows(t *testing.T) {
	dst := &bufferCloser{}
	w := NewCSVWriter(dst, Options{Columns: testColumns})

	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	rows := []*models.GameRecord{
		record("Rated Blitz", "alice", "", "1-0"),
		record("", "", "", ""),
		record("Open, Round 1", `Smith "The Hammer"`, "bob", "1/2-1/2"),
	}
	for _, r := range rows {
		if err := w.WriteRow(r); err != nil {
			t.Fatalf("WriteRow() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := "Event,White,Black,Result\n" +
		"Rated Blitz,alice,,1-0\n" +
		",,,\n" +
		`"Open, Round 1","Smith ""The Hammer""",bob,1/2-1/2` + "\n"
	if got := dst.String(); got != want {
		t.Errorf("output mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
	if w.Rows() != 3 {
		t.Errorf("Rows() = %d, want 3", w.Rows())
	}
	if dst.closed != 1 {
		t.Errorf("destination closed %d times, want 1", dst.closed)
	}
}

func TestCSVWriter_HeaderFlushedImmediately(t *testing.T) {
	dst := &bufferCloser{}
	w := NewCSVWriter(dst, Options{Columns: testColumns})

	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if got := dst.String(); got != "Event,White,Black,Result\n" {
		t.Errorf("header not flushed, destination holds %q", got)
	}
}

func TestCSVWriter_HeaderContract(t *testing.T) {
	w := NewCSVWriter(&bufferCloser{}, Options{Columns: testColumns})

	if err := w.WriteRow(record("a", "b", "c", "d")); !errors.Is(err, ErrHeaderMissing) {
		t.Errorf("WriteRow before header error = %v, want ErrHeaderMissing", err)
	}
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := w.WriteHeader(); !errors.Is(err, ErrHeaderWritten) {
		t.Errorf("second WriteHeader error = %v, want ErrHeaderWritten", err)
	}
}

func TestCSVWriter_RowWidth(t *testing.T) {
	w := NewCSVWriter(&bufferCloser{}, Options{Columns: testColumns})
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}

	err := w.WriteRow(record("a", "b"))
	if !errors.Is(err, ErrRowWidth) {
		t.Errorf("WriteRow(short) error = %v, want ErrRowWidth", err)
	}
	if w.Rows() != 0 {
		t.Errorf("Rows() = %d after rejected row, want 0", w.Rows())
	}
}

func TestCSVWriter_CloseTwice(t *testing.T) {
	dst := &bufferCloser{}
	w := NewCSVWriter(dst, Options{Columns: testColumns})

	if err := w.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if dst.closed != 1 {
		t.Errorf("destination closed %d times, want 1", dst.closed)
	}
	if err := w.WriteRow(record("a", "b", "c", "d")); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteRow after Close error = %v, want ErrClosed", err)
	}
}

func TestCSVWriter_WriteFailure(t *testing.T) {
	dst := &bufferCloser{writeErr: errors.New("no space left on device")}
	w := NewCSVWriter(dst, Options{Columns: testColumns})

	err := w.WriteHeader()
	if err == nil || !strings.Contains(err.Error(), "no space left") {
		t.Errorf("WriteHeader() error = %v, want write failure", err)
	}
	if err := w.Close(); err == nil {
		t.Error("Close() should report the sticky write failure")
	}
	if dst.closed != 1 {
		t.Errorf("destination closed %d times after failure, want 1", dst.closed)
	}
}

func TestCSVWriter_SmallBufferFlushesDuringWrites(t *testing.T) {
	dst := &bufferCloser{}
	w := NewCSVWriter(dst, Options{Columns: testColumns, BufferSize: 16})

	if err := w.WriteHeader(); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	for i := 0; i < 100; i++ {
		if err := w.WriteRow(record("Rated Blitz game", "alice", "bob", "1-0")); err != nil {
			t.Fatalf("WriteRow() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if lines := strings.Count(dst.String(), "\n"); lines != 101 {
		t.Errorf("got %d lines, want 101", lines)
	}
}
