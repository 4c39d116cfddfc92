package archive

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/meigma/arcguard/core"
)

// newDecompressor returns a reader decompressing r according to kind.
func newDecompressor(kind magicKind, r io.Reader) (io.ReadCloser, error) {
	switch kind {
	case kindGzip:
		return gzip.NewReader(r)
	case kindZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	case kindXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case kindBzip2:
		return archives.Bz2{}.OpenReader(r)
	case kindLz4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case kindLzip:
		return archives.Lzip{}.OpenReader(r)
	default:
		return nil, fmt.Errorf("%w: no decompressor for %s", core.ErrUnsupportedFormat, kind)
	}
}

// newCompressor wraps w in the compressor for a compressed tar format.
// Plain tar returns a no-op closer.
func newCompressor(format core.Format, w io.Writer) (io.WriteCloser, error) {
	switch format {
	case core.FormatTar:
		return nopWriteCloser{w}, nil
	case core.FormatTarGzip:
		return gzip.NewWriter(w), nil
	case core.FormatTarZstd:
		return zstd.NewWriter(w)
	case core.FormatTarXz:
		return xz.NewWriter(w)
	case core.FormatTarLz4:
		return lz4.NewWriter(w), nil
	case core.FormatTarBzip2:
		return archives.Bz2{}.OpenWriter(w)
	default:
		return nil, fmt.Errorf("%w: cannot create %s archives", core.ErrUnsupportedFormat, format)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
