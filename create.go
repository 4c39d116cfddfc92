package arcguard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/meigma/arcguard/internal/archive"
)

// Create writes an archive of srcDir to outPath. Symlinks are stored as
// links and never followed. The output file must not exist unless
// WithForce is given; if it lies inside srcDir it is left out of the archive.
func Create(ctx context.Context, srcDir, outPath string, opts ...CreateOption) (CreationReport, error) {
	cfg := &createConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	format := cfg.format
	if format == "" {
		var err error
		format, err = archive.FormatFromName(outPath)
		if err != nil {
			return CreationReport{}, err
		}
	}

	exclude := cfg.exclude
	if rel, ok := within(srcDir, outPath); ok {
		exclude = append(exclude[:len(exclude):len(exclude)], glob.QuoteMeta(rel))
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if cfg.force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	//nolint:gosec // G304: output path comes from the caller
	out, err := os.OpenFile(outPath, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return CreationReport{}, fmt.Errorf("output %s already exists (use force to overwrite): %w", outPath, err)
		}
		return CreationReport{}, fmt.Errorf("create output: %w", err)
	}

	report, err := archive.Create(ctx, srcDir, out, archive.CreateOptions{
		Format:  format,
		Exclude: exclude,
		Logger:  cfg.logger,
	})
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(outPath)
		return report, err
	}
	return report, nil
}

// within returns the slash-separated path of target relative to dir when
// target lies inside dir.
func within(dir, target string) (string, bool) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absDir, absTarget)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
