// Package ingest implements the bounded streaming copy from an inbound
// byte stream to a new file on disk, enforcing a byte ceiling without
// ever buffering the whole body in memory.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/marmos91/transferd/pkg/core"
)

// chunkSize is the read buffer size used while copying. Small enough
// to keep per-request memory flat regardless of ceiling, large enough
// to avoid excessive syscalls on fast links.
const chunkSize = 32 * 1024

// drainLimit bounds how many bytes are read and discarded from the
// source after a ceiling overflow, so the client gets a structured
// error instead of a reset connection without letting it force the
// server to consume arbitrary extra bytes.
const drainLimit = 10 * 1024

// Result reports how many bytes were durably written.
type Result struct {
	BytesWritten int64
}

// Copy creates path and copies src into it, refusing to write more
// than ceiling bytes. On overflow it aborts with UploadTooLarge after
// draining a bounded amount of the remaining source so the connection
// doesn't just reset; the caller is responsible for unlinking path.
// Copy never buffers more than one chunk of the body at a time.
func Copy(src io.Reader, path string, ceiling int64) (Result, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return Result{}, core.Internal(fmt.Errorf("create destination: %w", err))
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	var written int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if written+int64(n) > ceiling {
				drain(src)
				return Result{BytesWritten: written}, core.UploadTooLarge("upload exceeded declared size")
			}

			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return Result{BytesWritten: written}, core.Internal(fmt.Errorf("write destination: %w", writeErr))
			}
			written += int64(n)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return Result{BytesWritten: written}, core.Internal(fmt.Errorf("read source: %w", readErr))
		}
	}

	if err := f.Sync(); err != nil {
		return Result{BytesWritten: written}, core.Internal(fmt.Errorf("sync destination: %w", err))
	}

	return Result{BytesWritten: written}, nil
}

// drain reads and discards up to drainLimit bytes from src, ignoring
// any error: it exists purely so a well-behaved client sees a clean
// HTTP error response instead of a dropped connection.
func drain(src io.Reader) {
	_, _ = io.CopyN(io.Discard, src, drainLimit)
}
