package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for security violations and archive failures.
var (
	// ErrPathTraversal indicates an entry path is absolute, contains a ".."
	// component, a NUL byte, or is empty.
	ErrPathTraversal = errors.New("arcguard: path traversal detected")

	// ErrSymlinkEscape indicates a path traverses an existing symlink or a
	// symlink target resolves outside the destination.
	ErrSymlinkEscape = errors.New("arcguard: symlink escapes destination")

	// ErrHardlinkEscape indicates a hardlink target is not a valid relative path.
	ErrHardlinkEscape = errors.New("arcguard: hardlink escapes destination")

	// ErrDanglingHardlink indicates a hardlink targets an entry that was not
	// extracted earlier in the same session.
	ErrDanglingHardlink = errors.New("arcguard: hardlink target not extracted")

	// ErrUnsupportedSymlink indicates symlinks are disabled by configuration.
	ErrUnsupportedSymlink = errors.New("arcguard: symlinks not allowed")

	// ErrUnsupportedHardlink indicates hardlinks are disabled by configuration.
	ErrUnsupportedHardlink = errors.New("arcguard: hardlinks not allowed")

	// ErrUnsafePermissions indicates setuid, setgid or sticky bits are set
	// and not allowed.
	ErrUnsafePermissions = errors.New("arcguard: unsafe permissions")

	// ErrSuspiciousPermissions flags world-writable executable entries.
	// It is a warning: callers record it and continue.
	ErrSuspiciousPermissions = errors.New("arcguard: suspicious permissions")

	// ErrZipBomb indicates the compression ratio limit was exceeded.
	ErrZipBomb = errors.New("arcguard: compression ratio exceeded")

	// ErrQuotaExceeded indicates a byte or entry quota was exceeded.
	ErrQuotaExceeded = errors.New("arcguard: quota exceeded")

	// ErrUnsupportedFormat indicates the input is not a recognized archive.
	ErrUnsupportedFormat = errors.New("arcguard: unsupported archive format")

	// ErrCorruptArchive indicates malformed archive structure or content.
	ErrCorruptArchive = errors.New("arcguard: corrupt archive")

	// ErrUnsupportedEntry indicates an entry type that is never extracted
	// (devices, fifos, sparse files).
	ErrUnsupportedEntry = errors.New("arcguard: unsupported entry type")
)

// EntryError attaches the operation and entry path to an underlying error.
type EntryError struct {
	Op   string
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// ZipBombError reports an entry or stream whose expansion ratio exceeds the
// configured limit.
type ZipBombError struct {
	Path         string
	Compressed   int64
	Uncompressed int64
	Ratio        float64
	Limit        float64
}

func (e *ZipBombError) Error() string {
	return fmt.Sprintf("%v: %s expands %d to %d bytes (ratio %.1f, limit %.1f)",
		ErrZipBomb, e.Path, e.Compressed, e.Uncompressed, e.Ratio, e.Limit)
}

// Is reports whether target is ErrZipBomb.
func (e *ZipBombError) Is(target error) bool {
	return target == ErrZipBomb
}

// QuotaResource names the resource a quota applies to.
type QuotaResource string

// Quota resources.
const (
	QuotaTotalBytes       QuotaResource = "total-bytes"
	QuotaEntryCount       QuotaResource = "entry-count"
	QuotaSingleEntrySize  QuotaResource = "single-entry-size"
	QuotaCompressionRatio QuotaResource = "compression-ratio"
)

// QuotaError reports which quota was exceeded and by how much.
type QuotaError struct {
	Resource QuotaResource
	Observed uint64
	Limit    uint64
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v: %s %d exceeds limit %d", ErrQuotaExceeded, e.Resource, e.Observed, e.Limit)
}

// Is reports whether target is ErrQuotaExceeded.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// securityErrors lists the sentinels that represent a rejected entry or
// archive, keyed by their verification category.
var securityErrors = []struct {
	err      error
	category string
}{
	{ErrPathTraversal, "path-traversal"},
	{ErrSymlinkEscape, "symlink-escape"},
	{ErrHardlinkEscape, "hardlink-escape"},
	{ErrDanglingHardlink, "dangling-hardlink"},
	{ErrUnsupportedSymlink, "unsupported-symlink"},
	{ErrUnsupportedHardlink, "unsupported-hardlink"},
	{ErrUnsafePermissions, "unsafe-permissions"},
	{ErrSuspiciousPermissions, "suspicious-permissions"},
	{ErrZipBomb, "zip-bomb"},
	{ErrQuotaExceeded, "quota"},
	{ErrUnsupportedEntry, "unsupported-entry"},
}

// IsSecurityError reports whether err is a security violation rather than
// an I/O or format failure.
func IsSecurityError(err error) bool {
	if err == nil {
		return false
	}
	for _, s := range securityErrors {
		if errors.Is(err, s.err) {
			return true
		}
	}
	return false
}

// IsWarning reports whether err should be recorded instead of failing.
func IsWarning(err error) bool {
	return errors.Is(err, ErrSuspiciousPermissions)
}

// Category returns the verification category for err, or "" when err is
// not one of the classified errors.
func Category(err error) string {
	if err == nil {
		return ""
	}
	for _, s := range securityErrors {
		if errors.Is(err, s.err) {
			return s.category
		}
	}
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported-format"
	case errors.Is(err, ErrCorruptArchive):
		return "corrupt-archive"
	default:
		return ""
	}
}
