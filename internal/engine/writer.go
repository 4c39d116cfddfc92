package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"

	"github.com/meigma/arcguard/core"
	"github.com/meigma/arcguard/internal/archive"
	"github.com/meigma/arcguard/internal/progress"
	"github.com/meigma/arcguard/internal/safepath"
	"github.com/meigma/arcguard/internal/validate"
)

// parentPerm is the mode for directories created implicitly.
const parentPerm = 0o750

// tmpSuffix names the temporary link created before the atomic rename.
const tmpSuffix = ".arcguard-tmp"

// writeDir creates the directory at p, or adopts an existing one.
func (s *session) writeDir(p safepath.SafePath, mode fs.FileMode) error {
	if err := s.ensureParent(p); err != nil {
		return err
	}
	info, err := os.Lstat(p.Abs())
	switch {
	case err == nil && info.IsDir():
		s.createdDirs[p.Abs()] = struct{}{}
		return nil
	case err == nil:
		if !s.overwrite {
			return fmt.Errorf("%s: %w", p.Rel(), fs.ErrExist)
		}
		if err := os.Remove(p.Abs()); err != nil {
			return err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}

	if err := os.Mkdir(p.Abs(), mode); err != nil {
		return err
	}
	s.createdDirs[p.Abs()] = struct{}{}
	// Mkdir is subject to the umask and drops special bits.
	return os.Chmod(p.Abs(), mode)
}

// writeFile streams the current entry into a new file at p. The copy is
// capped at one byte past the declared size so an entry that lies about its
// size is detected without writing an unbounded amount.
func (s *session) writeFile(ctx context.Context, p safepath.SafePath, size int64, mode fs.FileMode) (int64, error) {
	if err := s.ensureParent(p); err != nil {
		return 0, err
	}
	if err := s.clearLeaf(p); err != nil {
		return 0, err
	}

	rc, err := s.src.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	// O_EXCL fails on anything that appeared since validation, including a
	// symlink planted at the leaf.
	//nolint:gosec // G304: Path validated by safepath.New
	f, err := os.OpenFile(p.Abs(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode.Perm())
	if err != nil {
		return 0, err
	}

	limit := size
	if limit < math.MaxInt64 {
		limit++
	}
	n, copyErr := archive.Copy(ctx, f, progress.NewReader(io.LimitReader(rc, limit), s.tracker), s.buf)
	closeErr := f.Close()
	if copyErr == nil && n != size {
		copyErr = fmt.Errorf("%w: content is %s declared size %d", core.ErrCorruptArchive, sizeRelation(n, size), size)
	}
	if copyErr != nil {
		_ = os.Remove(p.Abs())
		return n, copyErr
	}
	if closeErr != nil {
		return n, closeErr
	}
	// OpenFile is subject to the umask and drops special bits.
	return n, os.Chmod(p.Abs(), mode)
}

func sizeRelation(n, size int64) string {
	if n > size {
		return "longer than"
	}
	return "shorter than"
}

// writeSymlink creates the link in a temporary location and renames it into
// place so there is no window in which the leaf is missing or half written.
func (s *session) writeSymlink(link safepath.SafeSymlink) error {
	p := link.Link()
	if err := s.ensureParent(p); err != nil {
		return err
	}
	if err := s.clearLeaf(p); err != nil {
		return err
	}

	tmp := p.Abs() + tmpSuffix
	_ = os.Remove(tmp)
	if err := os.Symlink(link.Target(), tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, p.Abs()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// writeHardlink links the new path to a file extracted earlier in the session.
func (s *session) writeHardlink(link validate.Link) error {
	if err := s.ensureParent(link.Path); err != nil {
		return err
	}
	if err := s.clearLeaf(link.Path); err != nil {
		return err
	}
	return os.Link(link.Source, link.Path.Abs())
}

// clearLeaf makes room for a new non-directory entry at p. Without
// Overwrite an existing leaf is an error. With Overwrite a non-directory
// leaf is removed; the leaf itself is never followed.
func (s *session) clearLeaf(p safepath.SafePath) error {
	info, err := os.Lstat(p.Abs())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !s.overwrite {
		return fmt.Errorf("%s: %w", p.Rel(), fs.ErrExist)
	}
	if info.IsDir() {
		return fmt.Errorf("%s: cannot replace directory", p.Rel())
	}
	return os.Remove(p.Abs())
}

// ensureParent creates the missing directories above p. Existing components
// were already walked by safepath.New.
func (s *session) ensureParent(p safepath.SafePath) error {
	parent := p.Dir()
	if parent == s.dest.Root() || !s.dest.Contains(parent) {
		return nil
	}
	return s.mkdirAllCached(parent)
}

func (s *session) mkdirAllCached(path string) error {
	if _, ok := s.createdDirs[path]; ok {
		return nil
	}
	if err := os.MkdirAll(path, parentPerm); err != nil {
		return err
	}
	s.createdDirs[path] = struct{}{}
	return nil
}
