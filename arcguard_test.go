package arcguard_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/arcguard"
	"github.com/meigma/arcguard/internal/testutil"
)

const osWindows = "windows"

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	return testutil.WriteFile(t, t.TempDir(), name, data)
}

func makeTree(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	testutil.WriteFile(t, dir, "app/config.yaml", []byte("port: 8080\n"))
	testutil.WriteFile(t, dir, "app/data/seed.sql", []byte("select 1;\n"))
	testutil.WriteFile(t, dir, "app/.env", []byte("SECRET=1\n"))
	if runtime.GOOS != osWindows {
		require.NoError(t, os.Symlink("config.yaml", filepath.Join(dir, "app", "current.yaml")))
	}
	return dir
}

func TestCreateExtractRoundTrip(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"out.tar", "out.tar.gz", "out.tar.zst", "out.tar.xz", "out.tar.lz4", "out.tar.bz2", "out.zip"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			src := makeTree(t)
			archivePath := filepath.Join(t.TempDir(), name)
			created, err := arcguard.Create(t.Context(), src, archivePath, arcguard.WithExclude(".env"))
			require.NoError(t, err)
			assert.Equal(t, 2, created.Files)
			assert.Equal(t, 1, created.Excluded)

			report, err := arcguard.VerifyFile(t.Context(), archivePath)
			require.NoError(t, err)
			assert.Equal(t, arcguard.StatusPass, report.Status, "issues: %v", report.Issues)

			dest := t.TempDir()
			extracted, err := arcguard.ExtractFile(t.Context(), archivePath, dest)
			require.NoError(t, err)
			assert.Equal(t, 2, extracted.Files)
			assert.Equal(t, created.Format, extracted.Format)

			data, err := os.ReadFile(filepath.Join(dest, "app", "config.yaml"))
			require.NoError(t, err)
			assert.Equal(t, "port: 8080\n", string(data))
			assert.NoFileExists(t, filepath.Join(dest, "app", ".env"))

			if runtime.GOOS != osWindows {
				target, err := os.Readlink(filepath.Join(dest, "app", "current.yaml"))
				require.NoError(t, err)
				assert.Equal(t, "config.yaml", target)
			}

			manifest, err := arcguard.ListFile(t.Context(), archivePath, arcguard.WithDigests(true))
			require.NoError(t, err)
			assert.Equal(t, int64(len("port: 8080\n")+len("select 1;\n")), manifest.TotalSize())
		})
	}
}

func TestExtract_ZipSlip(t *testing.T) {
	t.Parallel()

	data := testutil.Zip(t, testutil.File("../../evil.sh", "rm -rf /"))
	parent := t.TempDir()
	dest := filepath.Join(parent, "out")
	require.NoError(t, os.Mkdir(dest, 0o755))

	_, err := arcguard.Extract(t.Context(), bytes.NewReader(data), dest)
	require.ErrorIs(t, err, arcguard.ErrPathTraversal)
	assert.True(t, arcguard.IsSecurityError(err))
	assert.Equal(t, "path-traversal", arcguard.Category(err))

	var entryErr *arcguard.EntryError
	require.True(t, errors.As(err, &entryErr))
	assert.Equal(t, "../../evil.sh", entryErr.Path)
	assert.NoFileExists(t, filepath.Join(parent, "evil.sh"))
}

func TestExtract_SkipPolicy(t *testing.T) {
	t.Parallel()

	data := testutil.Tar(t,
		testutil.File("a.txt", "a"),
		testutil.File("/abs.txt", "x"),
		testutil.File("b.txt", "b"),
	)
	report, err := arcguard.Extract(t.Context(), bytes.NewReader(data), t.TempDir(),
		arcguard.WithPolicy(arcguard.PolicySkipAndReport))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "/abs.txt", report.Skipped[0].Path)
}

func TestExtract_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := arcguard.DefaultSecurityConfig()
	cfg.MaxCompressionRatio = -1
	_, err := arcguard.Extract(t.Context(), bytes.NewReader(testutil.Tar(t)), t.TempDir(), arcguard.WithSecurityConfig(cfg))
	assert.Error(t, err)
}

func TestExtractFile_Progress(t *testing.T) {
	t.Parallel()

	// Random content keeps the per-entry ratio under the default limit.
	noise := make([]byte, 5000)
	_, _ = rand.NewChaCha8([32]byte{1}).Read(noise)
	archivePath := writeArchive(t, "in.zip", testutil.Zip(t,
		testutil.File("a.bin", string(noise[:3000])),
		testutil.File("b.bin", string(noise[3000:])),
	))

	var events []arcguard.ProgressEvent
	_, err := arcguard.ExtractFile(t.Context(), archivePath, t.TempDir(),
		arcguard.WithProgress(func(e arcguard.ProgressEvent) { events = append(events, e) }))
	require.NoError(t, err)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "extract", last.Operation)
	assert.Equal(t, int64(5000), last.BytesTransferred)
	assert.Equal(t, int64(5000), last.TotalBytes)
}

func TestVerify_NotAnArchive(t *testing.T) {
	t.Parallel()

	report, err := arcguard.Verify(t.Context(), bytes.NewReader([]byte("definitely not an archive")))
	require.NoError(t, err)
	assert.Equal(t, arcguard.StatusFail, report.Status)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "unsupported-format", report.Issues[0].Category)

	_, err = arcguard.VerifyFile(t.Context(), filepath.Join(t.TempDir(), "missing.zip"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestVerify_ZipBomb(t *testing.T) {
	t.Parallel()

	data := testutil.ZipDeclared(t, "bomb.bin", make([]byte, 1000), 10_000_000)
	report, err := arcguard.Verify(t.Context(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.False(t, report.Passed())
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "zip-bomb", report.Issues[0].Category)

	// Disabling the ratio check leaves the declared size within quota.
	cfg := arcguard.DefaultSecurityConfig()
	cfg.MaxCompressionRatio = 0
	report, err = arcguard.Verify(t.Context(), bytes.NewReader(data), arcguard.WithSecurityConfig(cfg))
	require.NoError(t, err)
	assert.True(t, report.Passed())
}

func TestList_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := arcguard.List(t.Context(), bytes.NewReader([]byte("plain text")))
	assert.ErrorIs(t, err, arcguard.ErrUnsupportedFormat)
}

func TestCreate_Overwrite(t *testing.T) {
	t.Parallel()

	src := makeTree(t)
	out := filepath.Join(t.TempDir(), "bundle.tar.gz")
	require.NoError(t, os.WriteFile(out, []byte("existing"), 0o644))

	_, err := arcguard.Create(t.Context(), src, out)
	require.ErrorIs(t, err, os.ErrExist)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data), "existing output is left untouched")

	_, err = arcguard.Create(t.Context(), src, out, arcguard.WithForce(true))
	require.NoError(t, err)
	report, err := arcguard.VerifyFile(t.Context(), out)
	require.NoError(t, err)
	assert.Equal(t, arcguard.FormatTarGzip, report.Format)
}

func TestCreate_OutputInsideSource(t *testing.T) {
	t.Parallel()

	src := makeTree(t)
	out := filepath.Join(src, "self.zip")
	_, err := arcguard.Create(t.Context(), src, out)
	require.NoError(t, err)

	manifest, err := arcguard.ListFile(t.Context(), out)
	require.NoError(t, err)
	for _, e := range manifest.Entries {
		assert.NotEqual(t, "self.zip", e.Path)
	}
}

func TestCreate_Errors(t *testing.T) {
	t.Parallel()

	src := makeTree(t)

	_, err := arcguard.Create(t.Context(), src, filepath.Join(t.TempDir(), "out.rar"))
	require.ErrorIs(t, err, arcguard.ErrUnsupportedFormat)

	out := filepath.Join(t.TempDir(), "out.bin")
	_, err = arcguard.Create(t.Context(), filepath.Join(src, "missing"), out, arcguard.WithFormat(arcguard.FormatTar))
	require.Error(t, err)
	assert.NoFileExists(t, out, "failed output is removed")
}
