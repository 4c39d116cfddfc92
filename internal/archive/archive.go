// Package archive provides the tar and zip format adapters and archive creation.
//
// Open selects an adapter by sniffing magic bytes, never by file name. Each
// adapter yields entries one at a time in archive order through EntryReader
// and maps malformed input to core.ErrCorruptArchive.
package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/arcguard/core"
)

// sniffBufferSize is the read-ahead buffer used for format detection.
const sniffBufferSize = 64 * 1024

// EntryReader iterates the entries of an archive.
type EntryReader interface {
	// Next returns the next entry, or io.EOF when the archive is exhausted.
	// A *core.EntryError means only that entry was unreadable and the reader
	// has already moved past it; any other error ends the stream.
	Next() (*core.ArchiveEntry, error)

	// Open returns the content of the entry most recently returned by Next.
	// It is only valid for regular files and only until the next call to Next.
	Open() (io.ReadCloser, error)

	// Format returns the detected archive format.
	Format() core.Format

	// Close releases decompressors and temporary files.
	Close() error
}

// Options configures Open.
type Options struct {
	// MaxCompressionRatio arms the streaming ratio guard for compressed tar
	// streams. Zero disables it.
	MaxCompressionRatio float64

	// TempDir is where non-seekable zip input is spooled. Empty uses the
	// system default.
	TempDir string

	Logger *slog.Logger
}

// Open detects the format of r and returns a reader over its entries.
//
// Zip archives need random access. When r implements io.ReaderAt and its
// size can be determined it is read in place; otherwise it is spooled to a
// temporary file removed by Close.
func Open(r io.Reader, opts Options) (EntryReader, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	br := bufio.NewReaderSize(r, sniffBufferSize)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read archive header: %w", err)
	}
	if len(head) == 0 {
		return nil, fmt.Errorf("%w: empty input", core.ErrUnsupportedFormat)
	}

	kind := detect(head)
	logger.Debug("detected archive format", "kind", kind)

	switch kind {
	case kindZip:
		return openZip(r, br, opts.TempDir, logger)
	case kindTar:
		return newTarReader(br, core.FormatTar, nil), nil
	case kindUnknown:
		return nil, fmt.Errorf("%w: unrecognized magic bytes", core.ErrUnsupportedFormat)
	default:
		return openCompressedTar(br, kind, opts.MaxCompressionRatio, logger)
	}
}

// openCompressedTar wraps br in the decompressor for kind and the streaming
// ratio guard, then requires the decompressed stream to be a tar archive.
func openCompressedTar(br *bufio.Reader, kind magicKind, maxRatio float64, logger *slog.Logger) (EntryReader, error) {
	counted := &countingReader{r: br}
	dec, err := newDecompressor(kind, counted)
	if err != nil {
		return nil, fmt.Errorf("%w: %s stream: %v", core.ErrCorruptArchive, kind, err)
	}

	guard := newRatioGuard(dec, counted, maxRatio)
	inner := bufio.NewReaderSize(guard, sniffBufferSize)
	head, err := inner.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		_ = dec.Close()
		if errors.Is(err, core.ErrZipBomb) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s stream: %v", core.ErrCorruptArchive, kind, err)
	}
	if detect(head) != kindTar {
		_ = dec.Close()
		return nil, fmt.Errorf("%w: %s stream does not contain a tar archive", core.ErrUnsupportedFormat, kind)
	}

	logger.Debug("opened compressed tar", "compression", kind, "max_ratio", maxRatio)
	return newTarReader(inner, kind.format(), dec), nil
}
