package storage

import (
	"context"
	"io"
	"strings"
	"sync"
)

// uploadWriter turns a streaming upload call into an io.WriteCloser.
// Bytes written are piped to the upload running in its own goroutine;
// Close ends the stream and waits for the upload to finish.
type uploadWriter struct {
	pw   *io.PipeWriter
	done chan error

	once sync.Once
	err  error
}

func newUploadWriter(ctx context.Context, upload func(ctx context.Context, body io.Reader) error) *uploadWriter {
	pr, pw := io.Pipe()
	w := &uploadWriter{
		pw:   pw,
		done: make(chan error, 1),
	}

	go func() {
		err := upload(ctx, pr)
		// Unblocks a pending Write when the upload gives up early.
		if err != nil {
			pr.CloseWithError(err)
		} else {
			pr.Close()
		}
		w.done <- err
	}()

	return w
}

func (w *uploadWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *uploadWriter) Close() error {
	w.once.Do(func() {
		w.pw.Close()
		w.err = <-w.done
	})
	return w.err
}

// joinKey prefixes an object key, keeping keys free of leading slashes.
func joinKey(prefix, path string) string {
	path = strings.TrimPrefix(path, "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return path
	}
	if path == "" {
		return prefix + "/"
	}
	return prefix + "/" + path
}

// trimKey undoes joinKey for listed keys.
func trimKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, prefix+"/")
}
