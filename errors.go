package arcguard

import "github.com/meigma/arcguard/core"

// Sentinel errors for security violations and archive failures.
// Re-exported from core package.
var (
	// ErrPathTraversal indicates an absolute path, a ".." component, a NUL
	// byte or an empty path.
	ErrPathTraversal = core.ErrPathTraversal

	// ErrSymlinkEscape indicates a symlink that leaves the destination, or a
	// path through an existing symlink.
	ErrSymlinkEscape = core.ErrSymlinkEscape

	// ErrHardlinkEscape indicates an invalid hardlink target.
	ErrHardlinkEscape = core.ErrHardlinkEscape

	// ErrDanglingHardlink indicates a hardlink to an entry not extracted earlier.
	ErrDanglingHardlink = core.ErrDanglingHardlink

	ErrUnsupportedSymlink  = core.ErrUnsupportedSymlink
	ErrUnsupportedHardlink = core.ErrUnsupportedHardlink

	// ErrUnsafePermissions indicates setuid, setgid or sticky bits.
	ErrUnsafePermissions = core.ErrUnsafePermissions

	// ErrSuspiciousPermissions is the warning recorded for world-writable
	// executables.
	ErrSuspiciousPermissions = core.ErrSuspiciousPermissions

	// ErrZipBomb indicates the compression ratio limit was exceeded.
	ErrZipBomb = core.ErrZipBomb

	// ErrQuotaExceeded indicates a byte or entry quota was exceeded.
	ErrQuotaExceeded = core.ErrQuotaExceeded

	ErrUnsupportedFormat = core.ErrUnsupportedFormat
	ErrCorruptArchive    = core.ErrCorruptArchive
	ErrUnsupportedEntry  = core.ErrUnsupportedEntry
)

// Typed errors. Re-exported from core package.
type (
	// EntryError carries the operation and entry path of a failure.
	EntryError = core.EntryError

	// ZipBombError reports the observed and allowed compression ratio.
	ZipBombError = core.ZipBombError

	// QuotaError reports which quota was exceeded.
	QuotaError = core.QuotaError
)

// IsSecurityError reports whether err is a security violation rather than an
// I/O or format failure.
func IsSecurityError(err error) bool {
	return core.IsSecurityError(err)
}

// Category returns the verification category for err, or "".
func Category(err error) string {
	return core.Category(err)
}
