package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/meigma/arcguard"
)

// Config keys shared by flags, environment variables and the config file.
const (
	KeyMaxRatio       = "security.max-compression-ratio"
	KeyMaxTotal       = "security.max-total-bytes"
	KeyMaxEntries     = "security.max-entry-count"
	KeyMaxEntrySize   = "security.max-single-entry-bytes"
	KeyFollowSymlinks = "security.follow-symlinks"
	KeyAllowSymlinks  = "security.allow-symlinks"
	KeyAllowHardlinks = "security.allow-hardlinks"
	KeyAllowSetuid    = "security.allow-setuid"
	KeyPolicy         = "policy"
	KeyProgress       = "progress"
	KeyLogLevel       = "log-level"
	KeyLogFormat      = "log-format"
	KeyOutput         = "output"
)

// Config represents the arcguard CLI configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	Security  SecurityConfig `mapstructure:"security"`
	Policy    string         `mapstructure:"policy"`
	Progress  string         `mapstructure:"progress"`
	LogLevel  string         `mapstructure:"log-level"`
	LogFormat string         `mapstructure:"log-format"`
	Output    string         `mapstructure:"output"`
}

// SecurityConfig holds the security limits as configured. Byte limits are
// strings so they can be written as "1GiB" or "500 MB".
type SecurityConfig struct {
	MaxCompressionRatio float64 `mapstructure:"max-compression-ratio"`
	MaxTotalBytes       string  `mapstructure:"max-total-bytes"`
	MaxEntryCount       uint64  `mapstructure:"max-entry-count"`
	MaxSingleEntryBytes string  `mapstructure:"max-single-entry-bytes"`
	FollowSymlinks      bool    `mapstructure:"follow-symlinks"`
	AllowSymlinks       bool    `mapstructure:"allow-symlinks"`
	AllowHardlinks      bool    `mapstructure:"allow-hardlinks"`
	AllowSetuid         bool    `mapstructure:"allow-setuid"`
}

// Defaults returns the default value of every key.
func Defaults() map[string]any {
	sec := arcguard.DefaultSecurityConfig()
	return map[string]any{
		KeyMaxRatio:       sec.MaxCompressionRatio,
		KeyMaxTotal:       humanize.IBytes(sec.MaxTotalBytes),
		KeyMaxEntries:     sec.MaxEntryCount,
		KeyMaxEntrySize:   humanize.IBytes(sec.MaxSingleEntryBytes),
		KeyFollowSymlinks: sec.FollowSymlinks,
		KeyAllowSymlinks:  sec.AllowSymlinks,
		KeyAllowHardlinks: sec.AllowHardlinks,
		KeyAllowSetuid:    sec.AllowSetuid,
		KeyPolicy:         arcguard.PolicyFailFast.String(),
		KeyProgress:       "auto",
		KeyLogLevel:       "warn",
		KeyLogFormat:      "text",
		KeyOutput:         "text",
	}
}

// Nested returns Defaults as nested maps, the shape written by config init.
func Nested() map[string]any {
	out := make(map[string]any)
	for key, value := range Defaults() {
		section, name, ok := strings.Cut(key, ".")
		if !ok {
			out[key] = value
			continue
		}
		sub, _ := out[section].(map[string]any)
		if sub == nil {
			sub = make(map[string]any)
			out[section] = sub
		}
		sub[name] = value
	}
	return out
}

// Resolve converts the configured limits into an arcguard.SecurityConfig.
// A byte limit of "0" means unlimited.
func (c SecurityConfig) Resolve() (arcguard.SecurityConfig, error) {
	total, err := parseSize("max-total-bytes", c.MaxTotalBytes)
	if err != nil {
		return arcguard.SecurityConfig{}, err
	}
	single, err := parseSize("max-single-entry-bytes", c.MaxSingleEntryBytes)
	if err != nil {
		return arcguard.SecurityConfig{}, err
	}
	return arcguard.SecurityConfig{
		MaxCompressionRatio: c.MaxCompressionRatio,
		MaxTotalBytes:       total,
		MaxEntryCount:       c.MaxEntryCount,
		MaxSingleEntryBytes: single,
		FollowSymlinks:      c.FollowSymlinks,
		AllowSymlinks:       c.AllowSymlinks,
		AllowHardlinks:      c.AllowHardlinks,
		AllowSetuid:         c.AllowSetuid,
	}, nil
}

func parseSize(name, s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return n, nil
}

// ParseLevel converts a log level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelWarn, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
