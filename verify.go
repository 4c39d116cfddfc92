package arcguard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/meigma/arcguard/internal/archive"
)

// Verify checks every entry of the archive read from r against the security
// configuration and returns all findings. Security problems, unsupported
// formats and corrupt archives are reported as issues; the error is reserved
// for unreadable input and cancellation.
//
// Verify has no destination, so it is stricter than extraction about
// absolute symlink targets: they are always reported, even with
// FollowSymlinks.
func Verify(ctx context.Context, r io.Reader, opts ...Option) (VerificationReport, error) {
	cfg := newConfig(opts)
	eng, err := cfg.engine("verify")
	if err != nil {
		return VerificationReport{}, err
	}

	src, err := archive.Open(r, cfg.archiveOptions())
	if err != nil {
		if !isArchiveFinding(err) {
			return VerificationReport{}, fmt.Errorf("open archive: %w", err)
		}
		report := VerificationReport{Status: StatusPass}
		report.Add(VerificationIssue{
			Severity: SeverityFail,
			Category: Category(err),
			Message:  err.Error(),
		})
		return report, nil
	}
	defer src.Close()

	return eng.Verify(ctx, src)
}

// VerifyFile verifies the archive at path.
func VerifyFile(ctx context.Context, path string, opts ...Option) (VerificationReport, error) {
	//nolint:gosec // G304: archive path comes from the caller
	f, err := os.Open(path)
	if err != nil {
		return VerificationReport{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return Verify(ctx, f, opts...)
}

// isArchiveFinding reports whether an Open failure describes the archive
// itself rather than the reader.
func isArchiveFinding(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrCorruptArchive) ||
		errors.Is(err, ErrZipBomb)
}
