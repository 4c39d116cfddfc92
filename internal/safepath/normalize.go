package safepath

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/arcguard/core"
)

// Normalize converts a raw archive path to a clean slash-separated relative
// path. Empty paths, NUL bytes, absolute paths (including Windows drive and
// UNC forms) and any ".." component are rejected with ErrPathTraversal.
// Backslashes are treated as separators and "." components are dropped.
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty path", core.ErrPathTraversal)
	}
	if containsNull(raw) {
		return "", fmt.Errorf("%w: path contains NUL byte", core.ErrPathTraversal)
	}
	if isAbsolute(raw) {
		return "", fmt.Errorf("%w: absolute path %q", core.ErrPathTraversal, raw)
	}
	if containsTraversal(raw) {
		return "", fmt.Errorf("%w: %q contains a parent reference", core.ErrPathTraversal, raw)
	}

	parts := components(raw)
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: %q names the destination root", core.ErrPathTraversal, raw)
	}
	return strings.Join(parts, "/"), nil
}

// IsRoot reports whether raw names the archive root ("", ".", "./").
func IsRoot(raw string) bool {
	return !containsNull(raw) && len(components(raw)) == 0 && !isAbsolute(raw)
}

// CheckTarget lexically verifies that a symlink target, interpreted relative
// to the directory of the normalized link path linkRel, stays inside the
// archive root. Absolute targets are rejected because they can only be
// checked against a concrete destination.
func CheckTarget(linkRel, target string) error {
	if target == "" || containsNull(target) {
		return fmt.Errorf("%w: invalid symlink target %q", core.ErrSymlinkEscape, target)
	}
	if isAbsolute(target) {
		return fmt.Errorf("%w: absolute symlink target %q", core.ErrSymlinkEscape, target)
	}

	depth := len(components(linkRel)) - 1
	if depth < 0 {
		depth = 0
	}
	for _, seg := range strings.Split(strings.ReplaceAll(target, `\`, "/"), "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: target %q climbs above the root", core.ErrSymlinkEscape, target)
			}
		default:
			depth++
		}
	}
	return nil
}

// components splits raw on either separator, dropping empty and "." parts.
func components(raw string) []string {
	var parts []string
	for _, seg := range strings.Split(strings.ReplaceAll(raw, `\`, "/"), "/") {
		if seg == "" || seg == "." {
			continue
		}
		parts = append(parts, seg)
	}
	return parts
}

func containsNull(path string) bool {
	return strings.IndexByte(path, 0) >= 0
}

// containsTraversal reports whether any component, split on either
// separator, is "..".
func containsTraversal(path string) bool {
	for _, seg := range strings.Split(strings.ReplaceAll(path, `\`, "/"), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// isAbsolute reports whether path is rooted on any platform: a leading slash
// or backslash (covers UNC), or a drive letter prefix such as "C:" or "C:\".
func isAbsolute(path string) bool {
	if path == "" {
		return false
	}
	if path[0] == '/' || path[0] == '\\' {
		return true
	}
	if len(path) >= 2 && path[1] == ':' && isLetter(path[0]) {
		return true
	}
	return filepath.IsAbs(path) || filepath.VolumeName(path) != ""
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
