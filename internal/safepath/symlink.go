package safepath

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/arcguard/core"
)

// SafeSymlink is a validated link location paired with a target that stays
// inside the destination.
type SafeSymlink struct {
	link     SafePath
	target   string
	resolved string
}

// NewSymlink validates a symlink entry.
//
// The link path goes through New. A relative target is checked lexically
// against the link's parent and then resolved through the destination,
// following symlinks already inside it, so every location the target passes
// through must also stay inside the root. Absolute targets are accepted only
// with FollowSymlinks and only when they lie under the root.
func NewSymlink(dest DestDir, rawLink, target string, cfg core.SecurityConfig) (SafeSymlink, error) {
	if !cfg.AllowSymlinks {
		return SafeSymlink{}, core.ErrUnsupportedSymlink
	}
	link, err := New(dest, rawLink, cfg)
	if err != nil {
		return SafeSymlink{}, err
	}

	if isAbsolute(target) && !cfg.FollowSymlinks {
		return SafeSymlink{}, fmt.Errorf("%w: absolute symlink target %q", core.ErrSymlinkEscape, target)
	}
	if !isAbsolute(target) {
		if err := CheckTarget(link.rel, target); err != nil {
			return SafeSymlink{}, err
		}
	}

	head, base, err := dest.splitTarget(target)
	if err != nil {
		return SafeSymlink{}, err
	}
	if base == "" {
		base = link.Dir()
	}
	resolved, err := dest.resolve(base, head, true, link.rel)
	if err != nil {
		return SafeSymlink{}, err
	}

	return SafeSymlink{
		link:     link,
		target:   filepath.FromSlash(strings.ReplaceAll(target, `\`, "/")),
		resolved: resolved,
	}, nil
}

// Link returns the validated location of the symlink itself.
func (s SafeSymlink) Link() SafePath {
	return s.link
}

// Target returns the target to write, in OS separator form.
func (s SafeSymlink) Target() string {
	return s.target
}

// Resolved returns the absolute location the target resolves to.
func (s SafeSymlink) Resolved() string {
	return s.resolved
}
