package arcguard

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/meigma/arcguard/internal/archive"
)

// List returns the manifest of the archive read from r without writing
// anything. Entry paths are normalized. Path traversal and unsafe
// permissions fail the listing with the same errors extraction returns.
func List(ctx context.Context, r io.Reader, opts ...Option) (ArchiveManifest, error) {
	cfg := newConfig(opts)
	eng, err := cfg.engine("list")
	if err != nil {
		return ArchiveManifest{}, err
	}
	src, err := archive.Open(r, cfg.archiveOptions())
	if err != nil {
		return ArchiveManifest{}, fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	manifest, err := eng.List(ctx, src)
	if err != nil {
		return manifest, fmt.Errorf("list: %w", err)
	}
	return manifest, nil
}

// ListFile lists the archive at path.
func ListFile(ctx context.Context, path string, opts ...Option) (ArchiveManifest, error) {
	//nolint:gosec // G304: archive path comes from the caller
	f, err := os.Open(path)
	if err != nil {
		return ArchiveManifest{}, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return List(ctx, f, opts...)
}
