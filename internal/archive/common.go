package archive

import (
	"context"
	"errors"
	"io"
)

// CopyBufferSize is the chunk size for Copy; cancellation is checked once per
// chunk.
const CopyBufferSize = 128 * 1024

// Copy copies from src to dst while honoring context cancellation and returns
// the number of bytes written. buf is reused when large enough.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	if len(buf) < CopyBufferSize {
		buf = make([]byte, CopyBufferSize)
	}
	buf = buf[:CopyBufferSize]

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			w, writeErr := dst.Write(buf[:n])
			written += int64(w)
			if writeErr != nil {
				return written, writeErr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
