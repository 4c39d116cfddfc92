package arcguard

import (
	"github.com/meigma/arcguard/core"
	"github.com/meigma/arcguard/internal/archive"
)

// Re-exported from core package.
type (
	Format             = core.Format
	EntryType          = core.EntryType
	ArchiveEntry       = core.ArchiveEntry
	ArchiveManifest    = core.ArchiveManifest
	SecurityConfig     = core.SecurityConfig
	Policy             = core.Policy
	SkippedEntry       = core.SkippedEntry
	ExtractionReport   = core.ExtractionReport
	CreationReport     = core.CreationReport
	Severity           = core.Severity
	VerificationStatus = core.VerificationStatus
	VerificationIssue  = core.VerificationIssue
	VerificationReport = core.VerificationReport
	QuotaResource      = core.QuotaResource
)

// Archive formats.
const (
	FormatTar      = core.FormatTar
	FormatTarGzip  = core.FormatTarGzip
	FormatTarZstd  = core.FormatTarZstd
	FormatTarXz    = core.FormatTarXz
	FormatTarBzip2 = core.FormatTarBzip2
	FormatTarLz4   = core.FormatTarLz4
	FormatTarLzip  = core.FormatTarLzip
	FormatZip      = core.FormatZip
)

// Entry types.
const (
	EntryOther    = core.EntryOther
	EntryFile     = core.EntryFile
	EntryDir      = core.EntryDir
	EntrySymlink  = core.EntrySymlink
	EntryHardlink = core.EntryHardlink
)

// Policies.
const (
	PolicyFailFast      = core.PolicyFailFast
	PolicySkipAndReport = core.PolicySkipAndReport
)

// Verification verdicts and issue severities.
const (
	StatusPass    = core.StatusPass
	StatusWarning = core.StatusWarning
	StatusFail    = core.StatusFail

	SeverityWarning = core.SeverityWarning
	SeverityFail    = core.SeverityFail
)

// Default limits applied by DefaultSecurityConfig.
const (
	DefaultMaxCompressionRatio = core.DefaultMaxCompressionRatio
	DefaultMaxTotalBytes       = core.DefaultMaxTotalBytes
	DefaultMaxEntryCount       = core.DefaultMaxEntryCount
	DefaultMaxSingleEntryBytes = core.DefaultMaxSingleEntryBytes
)

// DefaultSecurityConfig returns the conservative default limits.
func DefaultSecurityConfig() SecurityConfig {
	return core.DefaultSecurityConfig()
}

// ParsePolicy converts "fail-fast" or "skip" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	return core.ParsePolicy(s)
}

// ParseFormat converts a format name such as "tar.gz", "zstd" or "zip" to a
// Format that Create can write.
func ParseFormat(s string) (Format, error) {
	return archive.ParseFormat(s)
}
