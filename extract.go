package arcguard

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/meigma/arcguard/internal/archive"
)

// Extract reads an archive from r and writes its entries below destDir,
// which must exist.
//
// The report is returned even on error and reflects what was written before
// the failure. Partial output is not rolled back.
func Extract(ctx context.Context, r io.Reader, destDir string, opts ...Option) (ExtractionReport, error) {
	return extract(ctx, r, destDir, newConfig(opts))
}

// ExtractFile extracts the archive at archivePath below destDir.
func ExtractFile(ctx context.Context, archivePath, destDir string, opts ...Option) (ExtractionReport, error) {
	cfg := newConfig(opts)

	//nolint:gosec // G304: archive path comes from the caller
	f, err := os.Open(archivePath)
	if err != nil {
		return ExtractionReport{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	if cfg.progress != nil && cfg.total == 0 {
		cfg.total = declaredTotal(f, cfg)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return ExtractionReport{}, fmt.Errorf("rewind archive: %w", err)
		}
	}
	return extract(ctx, f, destDir, cfg)
}

func extract(ctx context.Context, r io.Reader, destDir string, cfg *config) (ExtractionReport, error) {
	eng, err := cfg.engine("extract")
	if err != nil {
		return ExtractionReport{}, err
	}
	src, err := archive.Open(r, cfg.archiveOptions())
	if err != nil {
		return ExtractionReport{}, fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	report, err := eng.Extract(ctx, src, destDir)
	if err != nil {
		return report, fmt.Errorf("extract to %s: %w", destDir, err)
	}
	return report, nil
}

// declaredTotal sums the declared file sizes of a zip archive from its
// central directory so progress can report a total. Other formats would need
// a full decompression pass and report -1.
func declaredTotal(f *os.File, cfg *config) int64 {
	src, err := archive.Open(f, cfg.archiveOptions())
	if err != nil {
		return -1
	}
	defer src.Close()
	if src.Format() != FormatZip {
		return -1
	}

	var total int64
	for {
		e, err := src.Next()
		if err != nil {
			break
		}
		if e.Type == EntryFile && e.Size > 0 {
			total += e.Size
		}
	}
	return total
}
