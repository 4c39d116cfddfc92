package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/meigma/arcguard/core"
)

// Compile-time interface implementation check.
var _ EntryReader = (*tarReader)(nil)

// modeBits are the mode bits carried into ArchiveEntry.Mode.
const modeBits = fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

// tarReader adapts archive/tar, optionally over a decompressor.
type tarReader struct {
	tr     *tar.Reader
	format core.Format
	dec    io.Closer
	cur    *tar.Header
}

func newTarReader(r io.Reader, format core.Format, dec io.Closer) *tarReader {
	return &tarReader{tr: tar.NewReader(r), format: format, dec: dec}
}

// Next skips PAX global headers and returns the next entry.
func (t *tarReader) Next() (*core.ArchiveEntry, error) {
	t.cur = nil
	for {
		hdr, err := t.tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if err != nil {
			return nil, streamError(err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		t.cur = hdr
		return entryFromHeader(hdr), nil
	}
}

// Open returns the content of the current regular file entry.
func (t *tarReader) Open() (io.ReadCloser, error) {
	if t.cur == nil || entryType(t.cur.Typeflag) != core.EntryFile {
		return nil, errors.New("no regular file entry is current")
	}
	return io.NopCloser(&tarContent{r: t.tr}), nil
}

func (t *tarReader) Format() core.Format {
	return t.format
}

func (t *tarReader) Close() error {
	if t.dec != nil {
		return t.dec.Close()
	}
	return nil
}

// tarContent maps read failures inside an entry body.
type tarContent struct {
	r io.Reader
}

func (c *tarContent) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = streamError(err)
	}
	return n, err
}

func entryFromHeader(hdr *tar.Header) *core.ArchiveEntry {
	e := &core.ArchiveEntry{
		Path:           hdr.Name,
		Type:           entryType(hdr.Typeflag),
		CompressedSize: -1,
		Mode:           hdr.FileInfo().Mode() & modeBits,
		LinkTarget:     hdr.Linkname,
		ModTime:        hdr.ModTime,
	}
	if e.Type == core.EntryFile {
		e.Size = hdr.Size
	}
	return e
}

func entryType(flag byte) core.EntryType {
	switch flag {
	case tar.TypeReg, tar.TypeRegA: //nolint:staticcheck // SA1019: old archives still use TypeRegA
		return core.EntryFile
	case tar.TypeDir:
		return core.EntryDir
	case tar.TypeSymlink:
		return core.EntrySymlink
	case tar.TypeLink:
		return core.EntryHardlink
	default:
		return core.EntryOther
	}
}

// streamError keeps ratio guard failures and cancellation intact and maps
// everything else to a corrupt archive.
func streamError(err error) error {
	if errors.Is(err, core.ErrZipBomb) || errors.Is(err, core.ErrCorruptArchive) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrCorruptArchive, err)
}
