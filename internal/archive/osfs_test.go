package archive

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const osWindows = "windows"

func TestSourceFS_Open(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	content := []byte("test content")
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "file.txt"), content, 0o644))

	fsys := newSourceFS(tmpDir)

	t.Run("valid file", func(t *testing.T) {
		t.Parallel()

		f, err := fsys.Open("file.txt")
		require.NoError(t, err)
		defer f.Close()

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("non-existent file", func(t *testing.T) {
		t.Parallel()

		_, err := fsys.Open("missing.txt")
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("invalid path with dotdot", func(t *testing.T) {
		t.Parallel()

		_, err := fsys.Open("../escape")
		assert.ErrorIs(t, err, fs.ErrInvalid)
	})

	t.Run("invalid absolute path", func(t *testing.T) {
		t.Parallel()

		_, err := fsys.Open("/absolute/path")
		assert.ErrorIs(t, err, fs.ErrInvalid)
	})
}

func TestSourceFS_ReadDir(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "subdir"), 0o755))

	fsys := newSourceFS(tmpDir)

	entries, err := fsys.ReadDir(".")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "subdir"}, names)

	_, err = fsys.ReadDir("../escape")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestSourceFS_Symlink(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "target.txt"), []byte("target content"), 0o644))

	if err := os.Symlink("target.txt", filepath.Join(tmpDir, "link.txt")); err != nil {
		if runtime.GOOS == osWindows {
			t.Skipf("skipping symlink test on windows: %v", err)
		}
		require.NoError(t, err)
	}

	fsys := newSourceFS(tmpDir)

	t.Run("Lstat returns symlink info", func(t *testing.T) {
		t.Parallel()

		info, err := fsys.Lstat("link.txt")
		require.NoError(t, err)
		assert.True(t, info.Mode()&fs.ModeSymlink != 0, "expected symlink mode")
	})

	t.Run("Open refuses symlink", func(t *testing.T) {
		t.Parallel()

		_, err := fsys.Open("link.txt")
		assert.Error(t, err)
	})

	t.Run("ReadLink returns target", func(t *testing.T) {
		t.Parallel()

		target, err := fsys.ReadLink("link.txt")
		require.NoError(t, err)
		assert.Equal(t, "target.txt", target)
	})

	t.Run("ReadLink on non-symlink fails", func(t *testing.T) {
		t.Parallel()

		_, err := fsys.ReadLink("target.txt")
		assert.Error(t, err)
	})

	t.Run("ReadLink invalid path", func(t *testing.T) {
		t.Parallel()

		_, err := fsys.ReadLink("../escape")
		assert.ErrorIs(t, err, fs.ErrInvalid)
	})
}
