// Package safepath provides the validated path types used for secure extraction.
//
// A SafePath can only be obtained through New, which normalizes the archive
// path, rejects traversal and walks the existing components below a DestDir
// so that no write ever goes through a symlink it did not vet. Writers in the
// engine accept SafePath values only.
package safepath

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/meigma/arcguard/core"
)

// maxSymlinkHops bounds symlink resolution during a single walk.
const maxSymlinkHops = 255

// errNoDest is returned when a zero DestDir is used.
var errNoDest = errors.New("destination directory not initialized")

// DestDir is the canonical extraction root.
type DestDir struct {
	root string
}

// NewDestDir canonicalizes path (absolute, symlinks resolved) and verifies it
// is an existing directory. The canonical form is captured once.
func NewDestDir(path string) (DestDir, error) {
	if path == "" {
		return DestDir{}, errors.New("destination directory is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return DestDir{}, fmt.Errorf("resolve destination: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return DestDir{}, fmt.Errorf("resolve destination: %w", err)
	}
	info, err := os.Stat(canon)
	if err != nil {
		return DestDir{}, fmt.Errorf("stat destination: %w", err)
	}
	if !info.IsDir() {
		return DestDir{}, fmt.Errorf("destination %s is not a directory", path)
	}
	return DestDir{root: canon}, nil
}

// Root returns the canonical absolute root.
func (d DestDir) Root() string {
	return d.root
}

// IsZero reports whether d was not created by NewDestDir.
func (d DestDir) IsZero() bool {
	return d.root == ""
}

// Contains reports whether abs is the root or lies beneath it.
func (d DestDir) Contains(abs string) bool {
	if d.root == "" {
		return false
	}
	return isWithinDir(filepath.Clean(abs), d.root)
}

// SafePath is a normalized archive path bound to a location under a DestDir.
type SafePath struct {
	rel string
	abs string
}

// New validates raw against dest and returns the location it resolves to.
//
// Every existing component is checked with Lstat. Without FollowSymlinks an
// existing symlink anywhere in the path is rejected with ErrSymlinkEscape.
// With FollowSymlinks the link is resolved and must stay inside the root.
func New(dest DestDir, raw string, cfg core.SecurityConfig) (SafePath, error) {
	if dest.IsZero() {
		return SafePath{}, errNoDest
	}
	rel, err := Normalize(raw)
	if err != nil {
		return SafePath{}, err
	}
	abs, err := dest.walk(rel, cfg.FollowSymlinks)
	if err != nil {
		return SafePath{}, err
	}
	return SafePath{rel: rel, abs: abs}, nil
}

// Rel returns the normalized slash-separated path relative to the root.
func (p SafePath) Rel() string {
	return p.rel
}

// Abs returns the absolute destination path.
func (p SafePath) Abs() string {
	return p.abs
}

// Dir returns the absolute path of the parent directory.
func (p SafePath) Dir() string {
	return filepath.Dir(p.abs)
}

// IsZero reports whether p was not produced by New.
func (p SafePath) IsZero() bool {
	return p.abs == ""
}

func (p SafePath) String() string {
	return p.rel
}

// walk resolves rel component by component below the root.
func (d DestDir) walk(rel string, follow bool) (string, error) {
	return d.resolve(d.root, strings.Split(rel, "/"), follow, rel)
}

// resolve applies parts to start one component at a time, the way the
// kernel would, and returns the absolute location reached. A ".." steps to
// the parent of the location reached so far, not of the lexical prefix, so
// symlinks met along the way are taken into account. Missing components are
// treated as plain directories to be created. Every intermediate location
// must stay inside the root.
func (d DestDir) resolve(start string, parts []string, follow bool, name string) (string, error) {
	cur := start
	hops := 0

	for len(parts) > 0 {
		part := parts[0]
		parts = parts[1:]

		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			if !d.Contains(cur) {
				return "", fmt.Errorf("%w: %s climbs above the destination", core.ErrSymlinkEscape, name)
			}
			continue
		}

		next := filepath.Join(cur, part)
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			cur = next
			continue
		}
		if err != nil {
			return "", fmt.Errorf("lstat %s: %w", next, err)
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			cur = next
			continue
		}
		if !follow {
			return "", fmt.Errorf("%w: %s passes through symlink %s", core.ErrSymlinkEscape, name, d.display(next))
		}

		hops++
		if hops > maxSymlinkHops {
			return "", fmt.Errorf("%w: too many levels of symlinks in %s", core.ErrSymlinkEscape, name)
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", fmt.Errorf("readlink %s: %w", next, err)
		}
		head, base, err := d.splitTarget(target)
		if err != nil {
			return "", fmt.Errorf("%w: %s passes through symlink %s", err, name, d.display(next))
		}
		if base != "" {
			cur = base
		}
		parts = append(head, parts...)
	}
	return cur, nil
}

// splitTarget prepares a symlink target for resolve. It returns the target's
// components and, for an absolute target, the root to resolve them from.
// Absolute targets must lie under the destination root.
func (d DestDir) splitTarget(target string) (parts []string, base string, err error) {
	if target == "" || containsNull(target) {
		return nil, "", fmt.Errorf("%w: invalid symlink target %q", core.ErrSymlinkEscape, target)
	}
	if !isAbsolute(target) {
		return components(target), "", nil
	}
	clean := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(target, `\`, "/")))
	if !d.Contains(clean) {
		return nil, "", fmt.Errorf("%w: target %q resolves outside destination", core.ErrSymlinkEscape, target)
	}
	rel, err := filepath.Rel(d.root, clean)
	if err != nil {
		return nil, "", fmt.Errorf("%w: target %q resolves outside destination", core.ErrSymlinkEscape, target)
	}
	return components(filepath.ToSlash(rel)), d.root, nil
}

// display renders abs relative to the root for error messages.
func (d DestDir) display(abs string) string {
	rel, err := filepath.Rel(d.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// isWithinDir reports whether path is dir or lies beneath it.
// Both arguments must be clean absolute paths.
func isWithinDir(path, dir string) bool {
	if path == dir {
		return true
	}
	if dir == string(filepath.Separator) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
