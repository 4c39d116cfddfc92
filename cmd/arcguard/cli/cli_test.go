package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/arcguard"
)

func TestFormatError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "verification", err: errVerificationFailed, want: "Error: verification failed"},
		{
			name: "zip bomb",
			err:  &arcguard.EntryError{Op: "extract", Path: "a", Err: &arcguard.ZipBombError{Path: "a", Ratio: 1000, Limit: 100}},
			want: "Error: compression bomb detected in a (ratio 1000 exceeds limit 100)",
		},
		{
			name: "quota",
			err:  &arcguard.QuotaError{Resource: "total-bytes", Observed: 11, Limit: 10},
			want: "Error: quota exceeded: total-bytes (11 > 10)",
		},
		{
			name: "path traversal",
			err:  fmt.Errorf("extract: %w", arcguard.ErrPathTraversal),
			want: "Error: path traversal detected",
		},
		{name: "symlink", err: arcguard.ErrSymlinkEscape, want: "Error: link escapes the destination"},
		{name: "hardlink", err: arcguard.ErrHardlinkEscape, want: "Error: link escapes the destination"},
		{name: "setuid", err: arcguard.ErrUnsafePermissions, want: "Error: unsafe permissions"},
		{name: "format", err: arcguard.ErrUnsupportedFormat, want: "Error: unsupported archive format"},
		{name: "corrupt", err: arcguard.ErrCorruptArchive, want: "Error: invalid or corrupt archive"},
		{name: "exists", err: fmt.Errorf("out.tar: %w", fs.ErrExist), want: "Error: already exists"},
		{name: "canceled", err: context.Canceled, want: "Error: operation canceled"},
		{name: "other", err: io.ErrUnexpectedEOF, want: "Error: unexpected EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := formatError(tt.err)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestFormatMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry arcguard.ArchiveEntry
		want  string
	}{
		{name: "file", entry: arcguard.ArchiveEntry{Type: arcguard.EntryFile, Mode: 0o644}, want: "-rw-r--r--"},
		{name: "dir", entry: arcguard.ArchiveEntry{Type: arcguard.EntryDir, Mode: fs.ModeDir | 0o755}, want: "drwxr-xr-x"},
		{name: "symlink", entry: arcguard.ArchiveEntry{Type: arcguard.EntrySymlink, Mode: 0o777}, want: "lrwxrwxrwx"},
		{name: "hardlink", entry: arcguard.ArchiveEntry{Type: arcguard.EntryHardlink, Mode: 0o600}, want: "hrw-------"},
		{name: "setuid", entry: arcguard.ArchiveEntry{Type: arcguard.EntryFile, Mode: fs.ModeSetuid | 0o755}, want: "-rwsr-xr-x"},
		{name: "setgid no exec", entry: arcguard.ArchiveEntry{Type: arcguard.EntryFile, Mode: fs.ModeSetgid | 0o644}, want: "-rw-r-Sr--"},
		{name: "sticky", entry: arcguard.ArchiveEntry{Type: arcguard.EntryDir, Mode: fs.ModeSticky | 0o777}, want: "drwxrwxrwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatMode(tt.entry))
		})
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	report := arcguard.VerificationReport{
		Format:       arcguard.FormatTarGzip,
		Status:       arcguard.StatusFail,
		TotalEntries: 2,
		Issues: []arcguard.VerificationIssue{{
			Severity: arcguard.SeverityFail,
			Category: "path-traversal",
			Path:     "../evil",
			Message:  "path traversal: ../evil",
		}},
	}
	text := func(w io.Writer) error { return printVerificationReport(w, report) }

	tests := []struct {
		format string
		want   []string
	}{
		{format: "text", want: []string{"FAIL tar+gzip (2 entries, 0 B)", "fail", "path-traversal", "../evil"}},
		{format: "json", want: []string{`"status": "FAIL"`, `"category": "path-traversal"`, `"severity": "fail"`}},
		{format: "yaml", want: []string{"status: FAIL", "category: path-traversal", "format: tar+gzip"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, render(&buf, tt.format, report, text))
			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		t.Parallel()
		err := render(io.Discard, "xml", report, text)
		assert.ErrorContains(t, err, "invalid output format")
	})
}

func TestPrintExtractionReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printExtractionReport(&buf, arcguard.ExtractionReport{
		Format:       arcguard.FormatZip,
		Files:        3,
		Dirs:         1,
		BytesWritten: 2048,
		Skipped:      []arcguard.SkippedEntry{{Path: "../evil", Reason: "path traversal"}},
		Warnings:     []string{"run.sh: suspicious permissions"},
	})

	out := buf.String()
	assert.Contains(t, out, "Extracted 3 files, 1 directories, 0 symlinks, 0 hardlinks (2.0 KiB, zip)")
	assert.Contains(t, out, "skipped: ../evil: path traversal")
	assert.Contains(t, out, "warning: run.sh: suspicious permissions")
}
