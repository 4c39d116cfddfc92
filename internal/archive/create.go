package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/klauspost/compress/flate"

	"github.com/meigma/arcguard/core"
)

// CreateOptions configures Create.
type CreateOptions struct {
	Format core.Format

	// Exclude holds glob patterns matched against the slash-separated path
	// relative to the source directory and against the base name. "*" does
	// not cross "/"; "**" does.
	Exclude []string

	Logger *slog.Logger
}

// FormatFromName infers the format to create from an output file name.
func FormatFromName(name string) (core.Format, error) {
	lower := strings.ToLower(name)
	suffixes := []struct {
		suffix string
		format core.Format
	}{
		{".tar.gz", core.FormatTarGzip},
		{".tgz", core.FormatTarGzip},
		{".tar.zst", core.FormatTarZstd},
		{".tzst", core.FormatTarZstd},
		{".tar.xz", core.FormatTarXz},
		{".txz", core.FormatTarXz},
		{".tar.lz4", core.FormatTarLz4},
		{".tar.bz2", core.FormatTarBzip2},
		{".tbz2", core.FormatTarBzip2},
		{".tar", core.FormatTar},
		{".zip", core.FormatZip},
	}
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.format, nil
		}
	}
	return "", fmt.Errorf("%w: cannot infer format from %q", core.ErrUnsupportedFormat, name)
}

// ParseFormat converts a user supplied format name.
func ParseFormat(name string) (core.Format, error) {
	switch strings.ToLower(name) {
	case "tar":
		return core.FormatTar, nil
	case "tar.gz", "tgz", "gzip", "tar+gzip":
		return core.FormatTarGzip, nil
	case "tar.zst", "zstd", "tar+zstd":
		return core.FormatTarZstd, nil
	case "tar.xz", "xz", "tar+xz":
		return core.FormatTarXz, nil
	case "tar.lz4", "lz4", "tar+lz4":
		return core.FormatTarLz4, nil
	case "tar.bz2", "bzip2", "tar+bzip2":
		return core.FormatTarBzip2, nil
	case "zip":
		return core.FormatZip, nil
	default:
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, name)
	}
}

// Create walks srcDir and writes an archive of it to w. Symlinks are stored
// as links, never followed. Special files are skipped with a warning.
func Create(ctx context.Context, srcDir string, w io.Writer, opts CreateOptions) (core.CreationReport, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	report := core.CreationReport{Format: opts.Format}

	info, err := os.Stat(srcDir)
	if err != nil {
		return report, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("source %s is not a directory", srcDir)
	}

	excludes, err := compileExcludes(opts.Exclude)
	if err != nil {
		return report, err
	}

	out := &countingWriter{w: w}
	sink, err := newSink(opts.Format, out)
	if err != nil {
		return report, err
	}

	src := newSourceFS(srcDir)
	buf := make([]byte, CopyBufferSize)
	walkErr := fs.WalkDir(src, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if name == "." {
			return nil
		}
		if excludes.match(name) {
			logger.Debug("excluded", "path", name)
			report.Excluded++
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := src.Lstat(name)
		if err != nil {
			return err
		}
		switch mode := info.Mode(); {
		case mode&fs.ModeSymlink != 0:
			target, err := src.ReadLink(name)
			if err != nil {
				return err
			}
			if err := sink.symlink(name, target, info); err != nil {
				return err
			}
			report.Symlinks++
		case mode.IsDir():
			if err := sink.dir(name, info); err != nil {
				return err
			}
			report.Dirs++
		case mode.IsRegular():
			n, err := addFile(ctx, sink, src, name, info, buf)
			if err != nil {
				return err
			}
			report.Files++
			report.BytesRead += n
		default:
			logger.Warn("skipping special file", "path", name, "type", mode.Type().String())
		}
		return nil
	})
	closeErr := sink.Close()

	report.BytesWritten = out.n
	report.Duration = time.Since(start)
	if walkErr != nil {
		return report, fmt.Errorf("create archive: %w", walkErr)
	}
	if closeErr != nil {
		return report, fmt.Errorf("finish archive: %w", closeErr)
	}
	return report, nil
}

func addFile(ctx context.Context, sink entrySink, src *sourceFS, name string, info fs.FileInfo, buf []byte) (int64, error) {
	f, err := src.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return sink.file(ctx, name, info, f, buf)
}

type excludeSet []glob.Glob

func compileExcludes(patterns []string) (excludeSet, error) {
	set := make(excludeSet, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		set = append(set, g)
	}
	return set, nil
}

func (s excludeSet) match(name string) bool {
	base := path.Base(name)
	for _, g := range s {
		if g.Match(name) || g.Match(base) {
			return true
		}
	}
	return false
}

// entrySink writes entries in one container format.
type entrySink interface {
	dir(name string, info fs.FileInfo) error
	symlink(name, target string, info fs.FileInfo) error
	file(ctx context.Context, name string, info fs.FileInfo, r io.Reader, buf []byte) (int64, error)
	Close() error
}

func newSink(format core.Format, w io.Writer) (entrySink, error) {
	if format == core.FormatZip {
		zw := zip.NewWriter(w)
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, flate.DefaultCompression)
		})
		return &zipSink{zw: zw}, nil
	}
	comp, err := newCompressor(format, w)
	if err != nil {
		return nil, err
	}
	return &tarSink{tw: tar.NewWriter(comp), comp: comp}, nil
}

type tarSink struct {
	tw   *tar.Writer
	comp io.WriteCloser
}

func (s *tarSink) header(name, link string, info fs.FileInfo) (*tar.Header, error) {
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return nil, err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	return hdr, nil
}

func (s *tarSink) dir(name string, info fs.FileInfo) error {
	hdr, err := s.header(name, "", info)
	if err != nil {
		return err
	}
	return s.tw.WriteHeader(hdr)
}

func (s *tarSink) symlink(name, target string, info fs.FileInfo) error {
	hdr, err := s.header(name, target, info)
	if err != nil {
		return err
	}
	return s.tw.WriteHeader(hdr)
}

func (s *tarSink) file(ctx context.Context, name string, info fs.FileInfo, r io.Reader, buf []byte) (int64, error) {
	hdr, err := s.header(name, "", info)
	if err != nil {
		return 0, err
	}
	if err := s.tw.WriteHeader(hdr); err != nil {
		return 0, err
	}
	return Copy(ctx, s.tw, io.LimitReader(r, hdr.Size), buf)
}

func (s *tarSink) Close() error {
	return errors.Join(s.tw.Close(), s.comp.Close())
}

type zipSink struct {
	zw *zip.Writer
}

func (s *zipSink) header(name string, info fs.FileInfo) (*zip.FileHeader, error) {
	fh, err := zip.FileInfoHeader(info)
	if err != nil {
		return nil, err
	}
	fh.Name = name
	fh.Method = zip.Store
	return fh, nil
}

func (s *zipSink) dir(name string, info fs.FileInfo) error {
	fh, err := s.header(name+"/", info)
	if err != nil {
		return err
	}
	_, err = s.zw.CreateHeader(fh)
	return err
}

func (s *zipSink) symlink(name, target string, info fs.FileInfo) error {
	fh, err := s.header(name, info)
	if err != nil {
		return err
	}
	w, err := s.zw.CreateHeader(fh)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, target)
	return err
}

func (s *zipSink) file(ctx context.Context, name string, info fs.FileInfo, r io.Reader, buf []byte) (int64, error) {
	fh, err := s.header(name, info)
	if err != nil {
		return 0, err
	}
	fh.Method = zip.Deflate
	w, err := s.zw.CreateHeader(fh)
	if err != nil {
		return 0, err
	}
	return Copy(ctx, w, r, buf)
}

func (s *zipSink) Close() error {
	return s.zw.Close()
}
