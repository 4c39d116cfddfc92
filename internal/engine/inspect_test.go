package engine

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/arcguard/core"
	"github.com/meigma/arcguard/internal/testutil"
)

var benignEntries = []testutil.Entry{
	testutil.Dir("./"),
	testutil.Dir("docs/"),
	testutil.File("./docs/readme.txt", "hello world"),
	testutil.Symlink("docs/latest", "readme.txt"),
	testutil.Hardlink("docs/copy.txt", "docs/readme.txt"),
	testutil.File("bin/tool", "#!/bin/sh\n").WithMode(0o755),
}

func TestList(t *testing.T) {
	t.Parallel()

	data := testutil.Tar(t, benignEntries...)
	m, err := newEngine(t, nil).List(t.Context(), openArchive(t, data))
	require.NoError(t, err)

	assert.Equal(t, core.FormatTar, m.Format)
	paths := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"docs", "docs/readme.txt", "docs/latest", "docs/copy.txt", "bin/tool"}, paths)
	assert.Equal(t, core.EntryHardlink, m.Entries[3].Type)
	assert.Equal(t, "docs/readme.txt", m.Entries[3].LinkTarget)
	assert.Equal(t, int64(len("hello world")+len("#!/bin/sh\n")), m.TotalSize())
	assert.Empty(t, m.Entries[1].Digest, "digests are opt-in")
}

func TestList_Digests(t *testing.T) {
	t.Parallel()

	e := newEngine(t, func(o *Options) { o.Digests = true })
	m, err := e.List(t.Context(), openArchive(t, testutil.Zip(t, benignEntries...)))
	require.NoError(t, err)

	byPath := make(map[string]core.ArchiveEntry)
	for _, entry := range m.Entries {
		byPath[entry.Path] = entry
	}
	assert.Equal(t, digest.FromString("hello world").String(), byPath["docs/readme.txt"].Digest)
	assert.Equal(t, digest.FromString("#!/bin/sh\n").String(), byPath["bin/tool"].Digest)
	assert.Empty(t, byPath["docs"].Digest)
	assert.Empty(t, byPath["docs/latest"].Digest)
}

func TestList_Deterministic(t *testing.T) {
	t.Parallel()

	data := testutil.TarGz(t, benignEntries...)
	e := newEngine(t, func(o *Options) { o.Digests = true })

	first, err := e.List(t.Context(), openArchive(t, data))
	require.NoError(t, err)
	second, err := e.List(t.Context(), openArchive(t, data))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestList_Violations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entry   testutil.Entry
		wantErr error
	}{
		{name: "traversal", entry: testutil.File("../evil", "x"), wantErr: core.ErrPathTraversal},
		{name: "absolute", entry: testutil.File("/etc/passwd", "x"), wantErr: core.ErrPathTraversal},
		{name: "setuid", entry: testutil.File("suid", "x").WithMode(0o755 | fs.ModeSetuid), wantErr: core.ErrUnsafePermissions},
		{name: "world-writable executable", entry: testutil.File("run.sh", "x").WithMode(0o777)},
		{name: "escaping symlink is listed", entry: testutil.Symlink("link", "../../etc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, err := newEngine(t, nil).List(t.Context(), openArchive(t, testutil.Tar(t, tt.entry)))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, m.Entries, 1)
		})
	}
}

func TestVerify_Pass(t *testing.T) {
	t.Parallel()

	report, err := newEngine(t, nil).Verify(t.Context(), openArchive(t, testutil.Tar(t, benignEntries...)))
	require.NoError(t, err)
	assert.Equal(t, core.StatusPass, report.Status)
	assert.True(t, report.Passed())
	assert.Empty(t, report.Issues)
	assert.Equal(t, uint64(5), report.TotalEntries)
	assert.Equal(t, uint64(len("hello world")+len("#!/bin/sh\n")), report.TotalBytes)
}

func TestVerify_DeclaredZipBomb(t *testing.T) {
	t.Parallel()

	data := testutil.ZipDeclared(t, "bomb.bin", make([]byte, 100), 1_000_000)
	report, err := newEngine(t, nil).Verify(t.Context(), openArchive(t, data))
	require.NoError(t, err)

	assert.Equal(t, core.StatusFail, report.Status)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "zip-bomb", report.Issues[0].Category)
	assert.Equal(t, core.SeverityFail, report.Issues[0].Severity)
	assert.Equal(t, "bomb.bin", report.Issues[0].Path)
}

func TestVerify_CollectsEveryIssue(t *testing.T) {
	t.Parallel()

	data := testutil.Tar(t,
		testutil.File("ok.txt", "fine"),
		testutil.File("../evil.txt", "x"),
		testutil.Symlink("link", "../outside"),
		testutil.Symlink("abs", "/etc/passwd"),
		testutil.Hardlink("h1", "later.txt"),
		testutil.File("later.txt", "x"),
		testutil.Hardlink("h2", "later.txt"),
		testutil.File("suid", "x").WithMode(0o755|fs.ModeSetuid),
		testutil.File("run.sh", "x").WithMode(0o777),
		testutil.Entry{Name: "pipe", Kind: testutil.KindFifo, Mode: 0o644},
	)

	report, err := newEngine(t, nil).Verify(t.Context(), openArchive(t, data))
	require.NoError(t, err)
	assert.Equal(t, core.StatusFail, report.Status)
	assert.Equal(t, uint64(10), report.TotalEntries)

	type found struct {
		category string
		path     string
		severity core.Severity
	}
	var got []found
	for _, issue := range report.Issues {
		got = append(got, found{issue.Category, issue.Path, issue.Severity})
		assert.NotEmpty(t, issue.Message)
	}
	assert.Equal(t, []found{
		{"path-traversal", "../evil.txt", core.SeverityFail},
		{"symlink-escape", "link", core.SeverityFail},
		{"symlink-escape", "abs", core.SeverityFail},
		{"dangling-hardlink", "h1", core.SeverityFail},
		{"unsafe-permissions", "suid", core.SeverityFail},
		{"suspicious-permissions", "run.sh", core.SeverityWarning},
		{"unsupported-entry", "pipe", core.SeverityFail},
	}, got)
}

func TestVerify_WarningOnly(t *testing.T) {
	t.Parallel()

	data := testutil.Tar(t, testutil.File("run.sh", "x").WithMode(0o777))
	report, err := newEngine(t, nil).Verify(t.Context(), openArchive(t, data))
	require.NoError(t, err)
	assert.Equal(t, core.StatusWarning, report.Status)
	assert.True(t, report.Passed())
	require.Len(t, report.Issues, 1)
}

func TestVerify_LinkPolicy(t *testing.T) {
	t.Parallel()

	data := testutil.Tar(t,
		testutil.File("a.txt", "x"),
		testutil.Symlink("s", "a.txt"),
		testutil.Hardlink("h", "a.txt"),
	)
	e := newEngine(t, func(o *Options) {
		o.Security.AllowSymlinks = false
		o.Security.AllowHardlinks = false
	})
	report, err := e.Verify(t.Context(), openArchive(t, data))
	require.NoError(t, err)

	require.Len(t, report.Issues, 2)
	assert.Equal(t, "unsupported-symlink", report.Issues[0].Category)
	assert.Equal(t, "unsupported-hardlink", report.Issues[1].Category)
}

func TestVerify_SymlinkChains(t *testing.T) {
	t.Parallel()

	rootLink := []testutil.Entry{
		testutil.Symlink("a", "."),
		testutil.Symlink("a/b", ".."),
	}
	throughLink := []testutil.Entry{
		testutil.Dir("sub/"),
		testutil.Symlink("lnk", "sub"),
		testutil.File("lnk/f", "x"),
	}

	tests := []struct {
		name     string
		entries  []testutil.Entry
		follow   bool
		wantPath string
	}{
		{name: "link under root link", entries: rootLink, wantPath: "a/b"},
		{name: "link under root link with follow", entries: rootLink, follow: true, wantPath: "a/b"},
		{name: "file through link", entries: throughLink, wantPath: "lnk/f"},
		{name: "file through link with follow", entries: throughLink, follow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEngine(t, func(o *Options) { o.Security.FollowSymlinks = tt.follow })
			data := testutil.Tar(t, tt.entries...)

			report, err := e.Verify(t.Context(), openArchive(t, data))
			require.NoError(t, err)

			// Verify and extraction must agree on the archive.
			_, extractErr := e.Extract(t.Context(), openArchive(t, data), t.TempDir())

			if tt.wantPath == "" {
				assert.Equal(t, core.StatusPass, report.Status)
				assert.Empty(t, report.Issues)
				assert.NoError(t, extractErr)
				return
			}
			assert.Equal(t, core.StatusFail, report.Status)
			require.Len(t, report.Issues, 1)
			assert.Equal(t, "symlink-escape", report.Issues[0].Category)
			assert.Equal(t, tt.wantPath, report.Issues[0].Path)
			assert.ErrorIs(t, extractErr, core.ErrSymlinkEscape)
		})
	}
}

func TestVerify_AbsoluteTargetWithFollow(t *testing.T) {
	t.Parallel()

	e := newEngine(t, func(o *Options) { o.Security.FollowSymlinks = true })
	report, err := e.Verify(t.Context(), openArchive(t, testutil.Tar(t, testutil.Symlink("link", "/srv/data"))))
	require.NoError(t, err)

	require.Len(t, report.Issues, 1)
	assert.Equal(t, "symlink-escape", report.Issues[0].Category)
	assert.Contains(t, report.Issues[0].Message, "absolute symlink target")
}

func TestVerify_ContinuesPastUnreadableZipEntry(t *testing.T) {
	t.Parallel()

	data := testutil.Zip(t,
		testutil.Symlink("long", strings.Repeat("a", 5000)),
		testutil.File("../evil.txt", "x"),
		testutil.File("/abs.txt", "x"),
	)
	report, err := newEngine(t, nil).Verify(t.Context(), openArchive(t, data))
	require.NoError(t, err)
	assert.Equal(t, core.StatusFail, report.Status)
	assert.Equal(t, uint64(3), report.TotalEntries)

	type found struct {
		category string
		path     string
	}
	var got []found
	for _, issue := range report.Issues {
		got = append(got, found{issue.Category, issue.Path})
	}
	assert.Equal(t, []found{
		{"corrupt-archive", "long"},
		{"path-traversal", "../evil.txt"},
		{"path-traversal", "/abs.txt"},
	}, got)
}

func TestVerify_TruncatedTarStops(t *testing.T) {
	t.Parallel()

	data := testutil.Tar(t, testutil.File("a.txt", strings.Repeat("x", 2048)), testutil.File("b.txt", "y"))
	report, err := newEngine(t, nil).Verify(t.Context(), openArchive(t, data[:1024]))
	require.NoError(t, err)
	assert.Equal(t, core.StatusFail, report.Status)
	require.NotEmpty(t, report.Issues)

	last := report.Issues[len(report.Issues)-1]
	assert.Equal(t, "corrupt-archive", last.Category)
	assert.Empty(t, last.Path)
}

func TestVerify_QuotaReportedOnce(t *testing.T) {
	t.Parallel()

	entries := make([]testutil.Entry, 0, 6)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		entries = append(entries, testutil.File(name, "0123456789"))
	}

	e := newEngine(t, func(o *Options) {
		o.Security.MaxEntryCount = 2
		o.Security.MaxSingleEntryBytes = 5
	})
	report, err := e.Verify(t.Context(), openArchive(t, testutil.Tar(t, entries...)))
	require.NoError(t, err)
	assert.Equal(t, core.StatusFail, report.Status)
	assert.Equal(t, uint64(6), report.TotalEntries)

	// Every entry is too large on its own; none is admitted, so the entry
	// count limit is never reached.
	for _, issue := range report.Issues {
		assert.Equal(t, "quota", issue.Category)
		assert.Contains(t, issue.Message, string(core.QuotaSingleEntrySize))
	}
	assert.Len(t, report.Issues, 6)

	e = newEngine(t, func(o *Options) { o.Security.MaxEntryCount = 2 })
	report, err = e.Verify(t.Context(), openArchive(t, testutil.Tar(t, entries...)))
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0].Message, string(core.QuotaEntryCount))
	assert.Equal(t, "c", report.Issues[0].Path)
}

func TestVerify_StreamBomb(t *testing.T) {
	t.Parallel()

	data := testutil.TarGz(t,
		testutil.Zeros("zeros.bin", 4<<20),
		testutil.File("after.txt", "x"),
	)
	report, err := newEngine(t, nil).Verify(t.Context(), openArchive(t, data))
	require.NoError(t, err)
	assert.Equal(t, core.StatusFail, report.Status)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "zip-bomb", report.Issues[0].Category)
}

func TestVerify_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := newEngine(t, nil).Verify(ctx, openArchive(t, testutil.Tar(t, benignEntries...)))
	assert.ErrorIs(t, err, context.Canceled)
}
