// Package core provides the shared types for arcguard.
//
// This package exists to break import cycles between the root arcguard package
// and internal implementation packages. The arcguard package re-exports all
// public types from this package, so external users should import arcguard
// directly, not arcguard/core.
package core

import (
	"io/fs"
	"time"
)

// Format identifies an archive container and its outer compression.
type Format string

// Supported archive formats.
const (
	FormatTar      Format = "tar"
	FormatTarGzip  Format = "tar+gzip"
	FormatTarZstd  Format = "tar+zstd"
	FormatTarXz    Format = "tar+xz"
	FormatTarBzip2 Format = "tar+bzip2"
	FormatTarLz4   Format = "tar+lz4"
	FormatTarLzip  Format = "tar+lzip"
	FormatZip      Format = "zip"
)

// IsCompressedTar reports whether f is a tar stream wrapped in a compressor.
func (f Format) IsCompressedTar() bool {
	switch f {
	case FormatTarGzip, FormatTarZstd, FormatTarXz, FormatTarBzip2, FormatTarLz4, FormatTarLzip:
		return true
	default:
		return false
	}
}

// EntryType classifies an archive entry.
type EntryType int

// Entry types understood by the extraction engine.
const (
	EntryOther EntryType = iota
	EntryFile
	EntryDir
	EntrySymlink
	EntryHardlink
)

// String returns the short name used in listings and reports.
func (t EntryType) String() string {
	switch t {
	case EntryFile:
		return "file"
	case EntryDir:
		return "dir"
	case EntrySymlink:
		return "symlink"
	case EntryHardlink:
		return "hardlink"
	default:
		return "other"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t EntryType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ArchiveEntry describes one entry as declared by the archive.
//
// Format adapters produce entries with the raw archive path. Manifests
// returned by List carry the normalized relative path instead.
type ArchiveEntry struct {
	Path string    `json:"path" yaml:"path"`
	Type EntryType `json:"type" yaml:"type"`

	// Size is the declared uncompressed size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// CompressedSize is the per-entry compressed size, or -1 when the
	// format does not record one (tar).
	CompressedSize int64 `json:"compressedSize" yaml:"compressedSize"`

	// Mode holds permission bits plus setuid, setgid and sticky.
	Mode fs.FileMode `json:"mode" yaml:"mode"`

	LinkTarget string    `json:"linkTarget,omitempty" yaml:"linkTarget,omitempty"`
	ModTime    time.Time `json:"modTime" yaml:"modTime"`

	// Digest is the content digest (sha256) when requested.
	Digest string `json:"digest,omitempty" yaml:"digest,omitempty"`
}

// ArchiveManifest is the ordered listing of an archive.
type ArchiveManifest struct {
	Format  Format         `json:"format" yaml:"format"`
	Entries []ArchiveEntry `json:"entries" yaml:"entries"`
}

// TotalSize returns the sum of declared sizes of regular files.
func (m ArchiveManifest) TotalSize() int64 {
	var total int64
	for i := range m.Entries {
		if m.Entries[i].Type == EntryFile {
			total += m.Entries[i].Size
		}
	}
	return total
}

// SkippedEntry records an entry rejected under the SkipAndReport policy.
type SkippedEntry struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// ExtractionReport summarizes a completed extraction.
type ExtractionReport struct {
	Format       Format         `json:"format" yaml:"format"`
	Files        int            `json:"files" yaml:"files"`
	Dirs         int            `json:"dirs" yaml:"dirs"`
	Symlinks     int            `json:"symlinks" yaml:"symlinks"`
	Hardlinks    int            `json:"hardlinks" yaml:"hardlinks"`
	BytesWritten int64          `json:"bytesWritten" yaml:"bytesWritten"`
	Skipped      []SkippedEntry `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Warnings     []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration     time.Duration  `json:"duration" yaml:"duration"`
}

// Entries returns the number of entries written to disk.
func (r ExtractionReport) Entries() int {
	return r.Files + r.Dirs + r.Symlinks + r.Hardlinks
}

// CreationReport summarizes a completed archive creation.
type CreationReport struct {
	Format       Format        `json:"format" yaml:"format"`
	Files        int           `json:"files" yaml:"files"`
	Dirs         int           `json:"dirs" yaml:"dirs"`
	Symlinks     int           `json:"symlinks" yaml:"symlinks"`
	Excluded     int           `json:"excluded" yaml:"excluded"`
	BytesRead    int64         `json:"bytesRead" yaml:"bytesRead"`
	BytesWritten int64         `json:"bytesWritten" yaml:"bytesWritten"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// Severity grades a verification issue.
type Severity int

// Issue severities.
const (
	SeverityWarning Severity = iota + 1
	SeverityFail
)

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// VerificationStatus is the overall verdict of a verification pass.
type VerificationStatus int

// Verification verdicts.
const (
	StatusPass VerificationStatus = iota
	StatusWarning
	StatusFail
)

// String returns the uppercase verdict used in reports.
func (s VerificationStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarning:
		return "WARNING"
	default:
		return "FAIL"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s VerificationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// VerificationIssue is one finding from Verify.
type VerificationIssue struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Category string   `json:"category" yaml:"category"`
	Path     string   `json:"path" yaml:"path"`
	Message  string   `json:"message" yaml:"message"`
}

// VerificationReport collects every issue found in a single pass.
type VerificationReport struct {
	Format       Format              `json:"format,omitempty" yaml:"format,omitempty"`
	Status       VerificationStatus  `json:"status" yaml:"status"`
	Issues       []VerificationIssue `json:"issues" yaml:"issues"`
	TotalEntries uint64              `json:"totalEntries" yaml:"totalEntries"`
	TotalBytes   uint64              `json:"totalBytes" yaml:"totalBytes"`
}

// Add appends an issue and updates the status.
func (r *VerificationReport) Add(issue VerificationIssue) {
	r.Issues = append(r.Issues, issue)
	switch {
	case issue.Severity == SeverityFail:
		r.Status = StatusFail
	case r.Status == StatusPass:
		r.Status = StatusWarning
	}
}

// Passed reports whether no Fail-severity issue was found.
func (r VerificationReport) Passed() bool {
	return r.Status != StatusFail
}
