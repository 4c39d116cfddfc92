// Package validate implements the per-entry security validators.
//
// Validators are pure functions over entry metadata and a SecurityConfig.
// Destination-bound variants return the safepath types the engine writes
// through; lexical variants are used by inspection, which has no destination.
package validate

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/meigma/arcguard/core"
	"github.com/meigma/arcguard/internal/safepath"
)

// specialBits are the mode bits that need AllowSetuid.
const specialBits = fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

// Path validates the entry path against dest.
func Path(dest safepath.DestDir, e *core.ArchiveEntry, cfg core.SecurityConfig) (safepath.SafePath, error) {
	p, err := safepath.New(dest, e.Path, cfg)
	if err != nil {
		return safepath.SafePath{}, wrap("validate path", e.Path, err)
	}
	return p, nil
}

// LexicalPath validates and normalizes the entry path without a destination.
func LexicalPath(e *core.ArchiveEntry) (string, error) {
	rel, err := safepath.Normalize(e.Path)
	if err != nil {
		return "", wrap("validate path", e.Path, err)
	}
	return rel, nil
}

// Symlink validates a symlink entry against dest.
func Symlink(dest safepath.DestDir, e *core.ArchiveEntry, cfg core.SecurityConfig) (safepath.SafeSymlink, error) {
	s, err := safepath.NewSymlink(dest, e.Path, e.LinkTarget, cfg)
	if err != nil {
		return safepath.SafeSymlink{}, wrap("validate symlink", e.Path, err)
	}
	return s, nil
}

// TreePath resolves the normalized entry path rel through the symlinks
// recorded in tree and returns the location it reaches.
func TreePath(tree *safepath.Tree, rel string, e *core.ArchiveEntry, cfg core.SecurityConfig) (string, error) {
	at, err := tree.Resolve(rel, cfg.FollowSymlinks)
	if err != nil {
		return "", wrap("validate path", e.Path, err)
	}
	return at, nil
}

// LexicalSymlink validates a symlink entry whose path has been normalized to
// rel and resolved through tree to at. The target is checked lexically and
// then resolved through the links already in tree. A link that passes is
// recorded in tree.
func LexicalSymlink(tree *safepath.Tree, rel, at string, e *core.ArchiveEntry, cfg core.SecurityConfig) error {
	if !cfg.AllowSymlinks {
		return wrap("validate symlink", e.Path, core.ErrUnsupportedSymlink)
	}
	if err := safepath.CheckTarget(rel, e.LinkTarget); err != nil {
		return wrap("validate symlink", e.Path, err)
	}
	if _, err := tree.ResolveTarget(at, e.LinkTarget); err != nil {
		return wrap("validate symlink", e.Path, err)
	}
	tree.AddSymlink(at, e.LinkTarget)
	return nil
}

// Link is a validated hardlink: the new link location and the absolute path
// of the already extracted file it points at.
type Link struct {
	Path   safepath.SafePath
	Source string
}

// Hardlink validates a hardlink entry. The target must name a file
// materialized earlier in the session; the filesystem is never consulted to
// decide that.
func Hardlink(dest safepath.DestDir, e *core.ArchiveEntry, cfg core.SecurityConfig, links *LinkTable) (Link, error) {
	targetRel, err := lexicalHardlink(e, cfg, links)
	if err != nil {
		return Link{}, err
	}
	link, err := safepath.New(dest, e.Path, cfg)
	if err != nil {
		return Link{}, wrap("validate hardlink", e.Path, err)
	}

	recorded, _ := links.Lookup(targetRel)
	source, err := securejoin.SecureJoin(dest.Root(), filepath.FromSlash(targetRel))
	if err != nil {
		return Link{}, wrap("validate hardlink", e.Path, fmt.Errorf("%w: %v", core.ErrHardlinkEscape, err))
	}
	if source != recorded {
		return Link{}, wrap("validate hardlink", e.Path,
			fmt.Errorf("%w: target %q no longer resolves to the extracted file", core.ErrHardlinkEscape, e.LinkTarget))
	}
	return Link{Path: link, Source: source}, nil
}

// LexicalHardlink validates a hardlink entry against the in-pass table.
func LexicalHardlink(e *core.ArchiveEntry, cfg core.SecurityConfig, links *LinkTable) error {
	_, err := lexicalHardlink(e, cfg, links)
	return err
}

func lexicalHardlink(e *core.ArchiveEntry, cfg core.SecurityConfig, links *LinkTable) (string, error) {
	if !cfg.AllowHardlinks {
		return "", wrap("validate hardlink", e.Path, core.ErrUnsupportedHardlink)
	}
	targetRel, err := safepath.Normalize(e.LinkTarget)
	if err != nil {
		return "", wrap("validate hardlink", e.Path,
			fmt.Errorf("%w: target %q: %v", core.ErrHardlinkEscape, e.LinkTarget, err))
	}
	if !links.Contains(targetRel) {
		return "", wrap("validate hardlink", e.Path,
			fmt.Errorf("%w: %q", core.ErrDanglingHardlink, e.LinkTarget))
	}
	return targetRel, nil
}

// Permissions checks mode bits. Setuid, setgid and sticky are rejected
// unless allowed. World-writable entries with an execute bit return a
// warning-kind error (core.IsWarning) that callers record instead of failing.
func Permissions(e *core.ArchiveEntry, cfg core.SecurityConfig) error {
	if e.Mode&specialBits != 0 && !cfg.AllowSetuid {
		return wrap("validate permissions", e.Path,
			fmt.Errorf("%w: mode %s", core.ErrUnsafePermissions, e.Mode))
	}
	if e.Type == core.EntrySymlink {
		return nil
	}
	perm := e.Mode.Perm()
	if perm&0o002 != 0 && perm&0o111 != 0 {
		return wrap("validate permissions", e.Path,
			fmt.Errorf("%w: world-writable and executable (%s)", core.ErrSuspiciousPermissions, perm))
	}
	return nil
}

// CompressionRatio checks the declared per-entry ratio. A compressed size of
// zero is safe and a negative (unknown) size is left to the streaming guard.
func CompressionRatio(e *core.ArchiveEntry, cfg core.SecurityConfig) error {
	if cfg.MaxCompressionRatio <= 0 || e.CompressedSize <= 0 || e.Size <= 0 {
		return nil
	}
	ratio := float64(e.Size) / float64(e.CompressedSize)
	if ratio <= cfg.MaxCompressionRatio {
		return nil
	}
	return &core.ZipBombError{
		Path:         e.Path,
		Compressed:   e.CompressedSize,
		Uncompressed: e.Size,
		Ratio:        ratio,
		Limit:        cfg.MaxCompressionRatio,
	}
}

// wrap attaches op and path unless err already carries entry context.
func wrap(op, path string, err error) error {
	var entryErr *core.EntryError
	if errors.As(err, &entryErr) {
		return err
	}
	return &core.EntryError{Op: op, Path: path, Err: err}
}
