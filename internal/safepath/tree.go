package safepath

import (
	"fmt"
	"strings"

	"github.com/meigma/arcguard/core"
)

// Tree records the symlinks an archive declares, keyed by the root-relative
// location each one was placed at. Resolve walks a normalized path through
// it the way New walks a destination, so inspection sees chained links
// without touching the filesystem.
//
// A Tree has no root to anchor absolute targets to; a recorded link with an
// absolute target never resolves.
type Tree struct {
	links map[string]string
}

// NewTree returns an empty Tree.
func NewTree() *Tree {
	return &Tree{links: make(map[string]string)}
}

// AddSymlink records a symlink at the resolved location rel.
func (t *Tree) AddSymlink(rel, target string) {
	t.links[rel] = target
}

// Len returns the number of recorded symlinks.
func (t *Tree) Len() int {
	return len(t.links)
}

// Resolve returns the root-relative location rel reaches. Without follow a
// recorded symlink anywhere in rel is rejected with ErrSymlinkEscape.
func (t *Tree) Resolve(rel string, follow bool) (string, error) {
	return t.resolve(nil, strings.Split(rel, "/"), follow, rel)
}

// ResolveTarget returns the location a symlink placed at linkRel reaches
// through target. Recorded symlinks along the target are always followed.
func (t *Tree) ResolveTarget(linkRel, target string) (string, error) {
	if target == "" || containsNull(target) {
		return "", fmt.Errorf("%w: invalid symlink target %q", core.ErrSymlinkEscape, target)
	}
	if isAbsolute(target) {
		return "", fmt.Errorf("%w: absolute symlink target %q", core.ErrSymlinkEscape, target)
	}
	var parent []string
	if parts := strings.Split(linkRel, "/"); linkRel != "" && len(parts) > 1 {
		parent = parts[:len(parts)-1]
	}
	return t.resolve(parent, components(target), true, linkRel)
}

func (t *Tree) resolve(cur, parts []string, follow bool, name string) (string, error) {
	hops := 0

	for len(parts) > 0 {
		part := parts[0]
		parts = parts[1:]

		switch part {
		case "", ".":
			continue
		case "..":
			if len(cur) == 0 {
				return "", fmt.Errorf("%w: %s climbs above the destination", core.ErrSymlinkEscape, name)
			}
			cur = cur[:len(cur)-1]
			continue
		}

		next := append(cur[:len(cur):len(cur)], part)
		key := strings.Join(next, "/")
		target, ok := t.links[key]
		if !ok {
			cur = next
			continue
		}
		if !follow {
			return "", fmt.Errorf("%w: %s passes through symlink %s", core.ErrSymlinkEscape, name, key)
		}

		hops++
		if hops > maxSymlinkHops {
			return "", fmt.Errorf("%w: too many levels of symlinks in %s", core.ErrSymlinkEscape, name)
		}
		if isAbsolute(target) {
			return "", fmt.Errorf("%w: %s passes through symlink %s with absolute target %q",
				core.ErrSymlinkEscape, name, key, target)
		}
		parts = append(components(target), parts...)
	}
	return strings.Join(cur, "/"), nil
}
