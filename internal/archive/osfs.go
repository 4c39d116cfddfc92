package archive

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Compile-time interface implementation checks.
var (
	_ fs.FS        = (*sourceFS)(nil)
	_ fs.ReadDirFS = (*sourceFS)(nil)
)

// sourceFS is the directory tree Create reads from. Symlinks are reported by
// Lstat and ReadLink and never followed when opening files.
type sourceFS struct {
	root string
}

func newSourceFS(root string) *sourceFS {
	return &sourceFS{root: root}
}

// Open opens a regular file. Symlinks and special files are refused so a
// link swapped in during the walk cannot pull outside content into the
// archive.
//
//nolint:gosec // G304: Path is validated by fs.ValidPath and rooted to s.root
func (s *sourceFS) Open(name string) (fs.File, error) {
	full, err := s.path("open", name)
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(full)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() && !info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fmt.Errorf("not a regular file (%s)", info.Mode().Type())}
	}
	return os.Open(full)
}

// ReadDir implements fs.ReadDirFS.
func (s *sourceFS) ReadDir(name string) ([]fs.DirEntry, error) {
	full, err := s.path("readdir", name)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(full)
}

// ReadLink returns the destination of the named symbolic link.
func (s *sourceFS) ReadLink(name string) (string, error) {
	full, err := s.path("readlink", name)
	if err != nil {
		return "", err
	}
	return os.Readlink(full)
}

// Lstat returns FileInfo for the named file without following symlinks.
func (s *sourceFS) Lstat(name string) (fs.FileInfo, error) {
	full, err := s.path("lstat", name)
	if err != nil {
		return nil, err
	}
	return os.Lstat(full)
}

func (s *sourceFS) path(op, name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return filepath.Join(s.root, filepath.FromSlash(name)), nil
}
