package validate

import "github.com/meigma/arcguard/internal/safepath"

// LinkTable records the files materialized in one session so hardlinks can
// be checked against archive history instead of the filesystem.
// It is not safe for concurrent use; each session owns its own table.
type LinkTable struct {
	paths map[string]string
}

// NewLinkTable returns an empty table.
func NewLinkTable() *LinkTable {
	return &LinkTable{paths: make(map[string]string)}
}

// Add records an extracted file or hardlink.
func (t *LinkTable) Add(p safepath.SafePath) {
	t.paths[p.Rel()] = p.Abs()
}

// AddRel records a normalized path during inspection, where no destination
// location exists.
func (t *LinkTable) AddRel(rel string) {
	t.paths[rel] = ""
}

// Remove forgets rel, used when an entry replaces a recorded file with
// something that cannot be a hardlink target.
func (t *LinkTable) Remove(rel string) {
	delete(t.paths, rel)
}

// Contains reports whether rel was recorded.
func (t *LinkTable) Contains(rel string) bool {
	_, ok := t.paths[rel]
	return ok
}

// Lookup returns the absolute location recorded for rel.
func (t *LinkTable) Lookup(rel string) (string, bool) {
	abs, ok := t.paths[rel]
	return abs, ok
}

// Len returns the number of recorded paths.
func (t *LinkTable) Len() int {
	return len(t.paths)
}
