package archive

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/arcguard/core"
	"github.com/meigma/arcguard/internal/testutil"
)

func makeSourceTree(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	testutil.WriteFile(t, dir, "config/app.yaml", []byte("name: app\n"))
	testutil.WriteFile(t, dir, "config/secret.key", []byte("hunter2"))
	testutil.WriteFile(t, dir, "data/empty.txt", nil)
	testutil.WriteFile(t, dir, "node_modules/pkg/index.js", []byte("module.exports = 1"))
	if runtime.GOOS != osWindows {
		require.NoError(t, os.Symlink("app.yaml", filepath.Join(dir, "config", "current.yaml")))
	}
	return dir
}

func TestCreate_RoundTrip(t *testing.T) {
	t.Parallel()

	formats := []core.Format{
		core.FormatTar,
		core.FormatTarGzip,
		core.FormatTarZstd,
		core.FormatTarXz,
		core.FormatTarLz4,
		core.FormatZip,
	}

	for _, format := range formats {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()

			src := makeSourceTree(t)
			var buf bytes.Buffer
			report, err := Create(t.Context(), src, &buf, CreateOptions{
				Format:  format,
				Exclude: []string{"*.key", "node_modules"},
			})
			require.NoError(t, err)
			assert.Equal(t, format, report.Format)
			assert.Equal(t, 2, report.Files)
			assert.Equal(t, 2, report.Excluded)
			assert.Equal(t, int64(len("name: app\n")), report.BytesRead)
			assert.Equal(t, int64(buf.Len()), report.BytesWritten)

			r, err := Open(bytes.NewReader(buf.Bytes()), Options{})
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, format, r.Format())

			byPath := make(map[string]readEntry)
			var paths []string
			for _, e := range readAll(t, r) {
				byPath[e.entry.Path] = e
				paths = append(paths, e.entry.Path)
			}
			sort.Strings(paths)

			assert.Equal(t, "name: app\n", byPath["config/app.yaml"].body)
			assert.NotContains(t, byPath, "config/secret.key")
			assert.NotContains(t, byPath, "node_modules/")
			assert.NotContains(t, byPath, "node_modules/pkg/index.js")
			if runtime.GOOS != osWindows {
				link := byPath["config/current.yaml"]
				assert.Equal(t, core.EntrySymlink, link.entry.Type)
				assert.Equal(t, "app.yaml", link.entry.LinkTarget)
				assert.Equal(t, 1, report.Symlinks)
			}
		})
	}
}

func TestCreate_Errors(t *testing.T) {
	t.Parallel()

	src := makeSourceTree(t)

	_, err := Create(t.Context(), filepath.Join(src, "missing"), &bytes.Buffer{}, CreateOptions{Format: core.FormatTar})
	assert.Error(t, err)

	_, err = Create(t.Context(), src, &bytes.Buffer{}, CreateOptions{Format: core.FormatTarBzip2})
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	_, err = Create(t.Context(), src, &bytes.Buffer{}, CreateOptions{Format: core.FormatTar, Exclude: []string{"[unterminated"}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = Create(ctx, src, &bytes.Buffer{}, CreateOptions{Format: core.FormatTar})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatFromName(t *testing.T) {
	t.Parallel()

	tests := map[string]core.Format{
		"out.tar":        core.FormatTar,
		"out.tar.gz":     core.FormatTarGzip,
		"OUT.TGZ":        core.FormatTarGzip,
		"out.tar.zst":    core.FormatTarZstd,
		"out.txz":        core.FormatTarXz,
		"out.tar.lz4":    core.FormatTarLz4,
		"out.tbz2":       core.FormatTarBzip2,
		"dir/bundle.zip": core.FormatZip,
	}
	for name, want := range tests {
		got, err := FormatFromName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := FormatFromName("out.rar")
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	f, err := ParseFormat("tgz")
	require.NoError(t, err)
	assert.Equal(t, core.FormatTarGzip, f)
}
