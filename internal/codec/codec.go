// Package codec wraps compressed archives in decompressing readers.
package codec

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec identifies an archive compression format
type Codec string

const (
	None  Codec = "none"
	Zstd  Codec = "zstd"
	Gzip  Codec = "gzip"
	Bzip2 Codec = "bzip2"
)

var (
	zstdMagic  = []byte{0x28, 0xB5, 0x2F, 0xFD}
	gzipMagic  = []byte{0x1F, 0x8B}
	bzip2Magic = []byte("BZh")
)

// FromName picks a codec from the file extension. Unknown extensions
// return None.
func FromName(name string) Codec {
	switch strings.ToLower(path.Ext(name)) {
	case ".zst", ".zstd":
		return Zstd
	case ".gz", ".gzip":
		return Gzip
	case ".bz2":
		return Bzip2
	default:
		return None
	}
}

// Sniff inspects the first bytes of a stream for a known magic number
func Sniff(head []byte) Codec {
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip
	case bytes.HasPrefix(head, bzip2Magic):
		return Bzip2
	default:
		return None
	}
}

// NewReader returns a decompressing reader for r. The codec comes from the
// extension of name; when the extension is not recognized the leading
// bytes of the stream decide. Closing the returned reader does not close r.
func NewReader(r io.Reader, name string) (io.ReadCloser, Codec, error) {
	c := FromName(name)
	if c == None {
		br := bufio.NewReader(r)
		head, err := br.Peek(len(zstdMagic))
		if err != nil && err != io.EOF {
			return nil, None, fmt.Errorf("failed to read archive header: %w", err)
		}
		c = Sniff(head)
		r = br
	}

	rc, err := Wrap(r, c)
	if err != nil {
		return nil, c, err
	}
	return rc, c, nil
}

// Wrap returns a reader that decompresses r with codec c
func Wrap(r io.Reader, c Codec) (io.ReadCloser, error) {
	switch c {
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return dec.IOReadCloser(), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return zr, nil
	case Bzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case None, "":
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", c)
	}
}
