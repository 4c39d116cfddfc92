// Package testutil builds benign and malicious archives in memory for tests.
package testutil

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mholt/archives"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

// epoch is the fixed modification time used for generated entries.
var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// Kind selects the entry type of a generated entry.
type Kind int

// Entry kinds.
const (
	KindFile Kind = iota
	KindDir
	KindSymlink
	KindHardlink
	KindFifo
)

// Entry describes one generated archive entry.
type Entry struct {
	Name   string
	Kind   Kind
	Body   []byte
	Mode   fs.FileMode
	Target string
}

// File returns a regular file entry with mode 0644.
func File(name, body string) Entry {
	return Entry{Name: name, Kind: KindFile, Body: []byte(body), Mode: 0o644}
}

// Dir returns a directory entry with mode 0755.
func Dir(name string) Entry {
	return Entry{Name: name, Kind: KindDir, Mode: 0o755}
}

// Symlink returns a symlink entry.
func Symlink(name, target string) Entry {
	return Entry{Name: name, Kind: KindSymlink, Mode: 0o777, Target: target}
}

// Hardlink returns a hardlink entry.
func Hardlink(name, target string) Entry {
	return Entry{Name: name, Kind: KindHardlink, Mode: 0o644, Target: target}
}

// WithMode returns e with mode replaced.
func (e Entry) WithMode(mode fs.FileMode) Entry {
	e.Mode = mode
	return e
}

// Tar returns an uncompressed tar stream containing entries.
func Tar(tb testing.TB, entries ...Entry) []byte {
	tb.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:    e.Name,
			Mode:    tarMode(e.Mode),
			ModTime: epoch,
		}
		switch e.Kind {
		case KindFile:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.Body))
		case KindDir:
			hdr.Typeflag = tar.TypeDir
		case KindSymlink:
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.Target
		case KindHardlink:
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = e.Target
		case KindFifo:
			hdr.Typeflag = tar.TypeFifo
		}
		require.NoError(tb, tw.WriteHeader(hdr), "write header %s", e.Name)
		if e.Kind == KindFile {
			_, err := tw.Write(e.Body)
			require.NoError(tb, err)
		}
	}
	require.NoError(tb, tw.Close())
	return buf.Bytes()
}

// TarGz returns a gzip-compressed tar stream.
func TarGz(tb testing.TB, entries ...Entry) []byte {
	tb.Helper()
	return Gzip(tb, Tar(tb, entries...))
}

// Gzip compresses data.
func Gzip(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(tb, err)
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

// Zstd compresses data.
func Zstd(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(tb, err)
	_, err = zw.Write(data)
	require.NoError(tb, err)
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

// Xz compresses data.
func Xz(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw, err := xz.NewWriter(&buf)
	require.NoError(tb, err)
	_, err = zw.Write(data)
	require.NoError(tb, err)
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

// Bzip2 compresses data.
func Bzip2(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw, err := archives.Bz2{}.OpenWriter(&buf)
	require.NoError(tb, err)
	_, err = zw.Write(data)
	require.NoError(tb, err)
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

// Lz4 compresses data as an lz4 frame.
func Lz4(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(tb, err)
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

// Zip returns a zip archive containing entries. Symlinks store their target
// as the entry body. Hardlinks are not representable and are skipped.
func Zip(tb testing.TB, entries ...Entry) []byte {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		fh := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: epoch}
		var body []byte
		switch e.Kind {
		case KindFile:
			fh.SetMode(e.Mode)
			body = e.Body
		case KindDir:
			fh.Name = ensureSlash(e.Name)
			fh.Method = zip.Store
			fh.SetMode(fs.ModeDir | e.Mode)
		case KindSymlink:
			fh.Method = zip.Store
			fh.SetMode(fs.ModeSymlink | e.Mode)
			body = []byte(e.Target)
		default:
			continue
		}
		w, err := zw.CreateHeader(fh)
		require.NoError(tb, err, "create %s", e.Name)
		_, err = w.Write(body)
		require.NoError(tb, err)
	}
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

// ZipDeclared returns a zip archive with one deflated entry whose central
// directory declares the given uncompressed size over a short compressed
// body. The body is not a valid expansion of that size; the archive is for
// metadata checks.
func ZipDeclared(tb testing.TB, name string, compressed []byte, uncompressed uint64) []byte {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fh := &zip.FileHeader{
		Name:               name,
		Method:             zip.Deflate,
		Modified:           epoch,
		CRC32:              crc32.ChecksumIEEE(nil),
		CompressedSize64:   uint64(len(compressed)),
		UncompressedSize64: uncompressed,
	}
	fh.SetMode(0o644)
	w, err := zw.CreateRaw(fh)
	require.NoError(tb, err)
	_, err = w.Write(compressed)
	require.NoError(tb, err)
	require.NoError(tb, zw.Close())
	return buf.Bytes()
}

// Zeros returns a file entry of n zero bytes, which compresses extremely well.
func Zeros(name string, n int) Entry {
	return Entry{Name: name, Kind: KindFile, Body: make([]byte, n), Mode: 0o644}
}

// WriteFile writes data to dir/name and returns the full path.
func WriteFile(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	require.NoError(tb, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(tb, os.WriteFile(path, data, 0o644))
	return path
}

// Reader returns a reader over data that does not implement io.ReaderAt,
// forcing stream handling.
func Reader(data []byte) io.Reader {
	return struct{ io.Reader }{bytes.NewReader(data)}
}

func ensureSlash(name string) string {
	if name == "" || name[len(name)-1] == '/' {
		return name
	}
	return name + "/"
}

func tarMode(mode fs.FileMode) int64 {
	m := int64(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		m |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		m |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		m |= 0o1000
	}
	return m
}
