package archive

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/meigma/arcguard/core"
)

// Compile-time interface implementation check.
var _ EntryReader = (*zipReader)(nil)

// maxSymlinkTarget caps how much of a zip symlink body is read as its target.
const maxSymlinkTarget = 4096

// sizer is implemented by bytes.Reader, strings.Reader and io.SectionReader.
type sizer interface {
	Size() int64
}

// zipReader walks the central directory of a zip archive.
type zipReader struct {
	zr    *zip.Reader
	idx   int
	cur   *zip.File
	spool *os.File
}

// openZip opens a zip archive from src. br holds the bytes already sniffed
// from src and is used when src must be spooled.
func openZip(src io.Reader, br *bufio.Reader, tempDir string, logger *slog.Logger) (EntryReader, error) {
	if ra, size, ok := randomAccess(src); ok {
		return newZipReader(ra, size, nil)
	}

	spool, err := os.CreateTemp(tempDir, "arcguard-zip-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	size, err := io.Copy(spool, br)
	if err != nil {
		discardSpool(spool)
		return nil, fmt.Errorf("spool zip archive: %w", err)
	}
	logger.Debug("spooled zip archive", "path", spool.Name(), "size", size)

	r, err := newZipReader(spool, size, spool)
	if err != nil {
		discardSpool(spool)
		return nil, err
	}
	return r, nil
}

// randomAccess reports whether src can be read in place.
func randomAccess(src io.Reader) (io.ReaderAt, int64, bool) {
	ra, ok := src.(io.ReaderAt)
	if !ok {
		return nil, 0, false
	}
	switch s := src.(type) {
	case *os.File:
		info, err := s.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return nil, 0, false
		}
		return ra, info.Size(), true
	case sizer:
		return ra, s.Size(), true
	default:
		return nil, 0, false
	}
}

func newZipReader(ra io.ReaderAt, size int64, spool *os.File) (*zipReader, error) {
	zr, err := zip.NewReader(ra, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptArchive, err)
	}
	// ErrInsecurePath comes with a usable reader; paths are validated per entry.
	return &zipReader{zr: zr, spool: spool}, nil
}

// Next returns the next central directory entry.
func (z *zipReader) Next() (*core.ArchiveEntry, error) {
	z.cur = nil
	if z.idx >= len(z.zr.File) {
		return nil, io.EOF
	}
	f := z.zr.File[z.idx]
	z.idx++
	z.cur = f

	if f.UncompressedSize64 > math.MaxInt64 || f.CompressedSize64 > math.MaxInt64 {
		return nil, &core.EntryError{Op: "read zip entry", Path: f.Name,
			Err: fmt.Errorf("%w: size out of range", core.ErrCorruptArchive)}
	}

	mode := f.Mode()
	e := &core.ArchiveEntry{
		Path:           f.Name,
		CompressedSize: int64(f.CompressedSize64),
		Mode:           mode & modeBits,
		ModTime:        f.Modified,
	}
	switch {
	case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
		e.Type = core.EntryDir
	case mode&fs.ModeSymlink != 0:
		e.Type = core.EntrySymlink
		target, err := z.readSymlinkTarget(f)
		if err != nil {
			return nil, err
		}
		e.LinkTarget = target
	case mode.IsRegular():
		e.Type = core.EntryFile
		e.Size = int64(f.UncompressedSize64)
	default:
		e.Type = core.EntryOther
	}
	return e, nil
}

func (z *zipReader) readSymlinkTarget(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", &core.EntryError{Op: "read zip symlink", Path: f.Name, Err: zipError(err)}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxSymlinkTarget+1))
	if err != nil {
		return "", &core.EntryError{Op: "read zip symlink", Path: f.Name, Err: zipError(err)}
	}
	if len(data) > maxSymlinkTarget {
		return "", &core.EntryError{Op: "read zip symlink", Path: f.Name,
			Err: fmt.Errorf("%w: symlink target longer than %d bytes", core.ErrCorruptArchive, maxSymlinkTarget)}
	}
	return string(data), nil
}

// Open returns the decompressed content of the current file entry.
// archive/zip verifies the declared size and CRC while reading.
func (z *zipReader) Open() (io.ReadCloser, error) {
	if z.cur == nil || !z.cur.Mode().IsRegular() {
		return nil, errors.New("no regular file entry is current")
	}
	rc, err := z.cur.Open()
	if err != nil {
		return nil, zipError(err)
	}
	return &zipContent{rc: rc}, nil
}

func (z *zipReader) Format() core.Format {
	return core.FormatZip
}

func (z *zipReader) Close() error {
	if z.spool != nil {
		discardSpool(z.spool)
		z.spool = nil
	}
	return nil
}

// zipContent maps checksum and format failures to corrupt archive errors.
type zipContent struct {
	rc io.ReadCloser
}

func (c *zipContent) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		err = zipError(err)
	}
	return n, err
}

func (c *zipContent) Close() error {
	return c.rc.Close()
}

func zipError(err error) error {
	if errors.Is(err, core.ErrCorruptArchive) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrCorruptArchive, err)
}

func discardSpool(f *os.File) {
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
}
