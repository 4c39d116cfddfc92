package core

import "fmt"

// Default limits applied by DefaultSecurityConfig.
const (
	DefaultMaxCompressionRatio = 100.0
	DefaultMaxTotalBytes       = 1 << 30   // 1 GiB
	DefaultMaxEntryCount       = 100_000
	DefaultMaxSingleEntryBytes = 100 << 20 // 100 MiB
)

// SecurityConfig holds the limits and switches every validator reads.
//
// A zero numeric limit means unlimited. The value is immutable for the
// duration of a session.
type SecurityConfig struct {
	// MaxCompressionRatio bounds uncompressed/compressed size per entry and
	// for compressed tar streams. Zero disables the check.
	MaxCompressionRatio float64 `json:"maxCompressionRatio" yaml:"maxCompressionRatio" mapstructure:"max-compression-ratio"`

	MaxTotalBytes       uint64 `json:"maxTotalBytes" yaml:"maxTotalBytes" mapstructure:"max-total-bytes"`
	MaxEntryCount       uint64 `json:"maxEntryCount" yaml:"maxEntryCount" mapstructure:"max-entry-count"`
	MaxSingleEntryBytes uint64 `json:"maxSingleEntryBytes" yaml:"maxSingleEntryBytes" mapstructure:"max-single-entry-bytes"`

	// FollowSymlinks permits paths that traverse symlinks already inside
	// the destination, and absolute symlink targets under the root.
	FollowSymlinks bool `json:"followSymlinks" yaml:"followSymlinks" mapstructure:"follow-symlinks"`
	AllowSymlinks  bool `json:"allowSymlinks" yaml:"allowSymlinks" mapstructure:"allow-symlinks"`
	AllowHardlinks bool `json:"allowHardlinks" yaml:"allowHardlinks" mapstructure:"allow-hardlinks"`

	// AllowSetuid permits setuid, setgid and sticky bits.
	AllowSetuid bool `json:"allowSetuid" yaml:"allowSetuid" mapstructure:"allow-setuid"`
}

// DefaultSecurityConfig returns the conservative defaults.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxCompressionRatio: DefaultMaxCompressionRatio,
		MaxTotalBytes:       DefaultMaxTotalBytes,
		MaxEntryCount:       DefaultMaxEntryCount,
		MaxSingleEntryBytes: DefaultMaxSingleEntryBytes,
		AllowSymlinks:       true,
		AllowHardlinks:      true,
	}
}

// Validate rejects configurations no validator can honor.
func (c SecurityConfig) Validate() error {
	if c.MaxCompressionRatio < 0 {
		return fmt.Errorf("max compression ratio must not be negative, got %g", c.MaxCompressionRatio)
	}
	if c.MaxCompressionRatio > 0 && c.MaxCompressionRatio < 1 {
		return fmt.Errorf("max compression ratio must be at least 1, got %g", c.MaxCompressionRatio)
	}
	return nil
}

// Policy selects how the engine reacts to a rejected entry.
type Policy int

// Extraction policies.
const (
	// PolicyFailFast aborts the session on the first security error.
	PolicyFailFast Policy = iota

	// PolicySkipAndReport skips rejected entries and records them in the
	// report. Quota, corrupt-archive and I/O errors still abort.
	PolicySkipAndReport
)

// String returns the policy name used in configuration.
func (p Policy) String() string {
	switch p {
	case PolicySkipAndReport:
		return "skip"
	default:
		return "fail-fast"
	}
}

// ParsePolicy converts a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail-fast", "failfast":
		return PolicyFailFast, nil
	case "skip", "skip-and-report":
		return PolicySkipAndReport, nil
	default:
		return PolicyFailFast, fmt.Errorf("unknown policy %q (want fail-fast or skip)", s)
	}
}
