package cli

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/arcguard"
	"github.com/meigma/arcguard/cmd/arcguard/cli/config"
)

// securityFlags maps flag names to the config keys they override.
var securityFlags = map[string]string{
	"max-ratio":       config.KeyMaxRatio,
	"max-total":       config.KeyMaxTotal,
	"max-entries":     config.KeyMaxEntries,
	"max-entry-size":  config.KeyMaxEntrySize,
	"follow-symlinks": config.KeyFollowSymlinks,
	"allow-symlinks":  config.KeyAllowSymlinks,
	"allow-hardlinks": config.KeyAllowHardlinks,
	"allow-setuid":    config.KeyAllowSetuid,
}

// addSecurityFlags registers the security limit flags on cmd. Several
// commands share the same config keys, so the flags are bound to Viper only
// when the command runs (see bindFlags).
func addSecurityFlags(cmd *cobra.Command) {
	sec := arcguard.DefaultSecurityConfig()
	flags := cmd.Flags()
	flags.Float64("max-ratio", sec.MaxCompressionRatio, "Maximum compression ratio per entry and stream (0 disables)")
	flags.String("max-total", humanize.IBytes(sec.MaxTotalBytes), "Maximum total uncompressed bytes (0 for unlimited)")
	flags.Uint64("max-entries", sec.MaxEntryCount, "Maximum number of entries (0 for unlimited)")
	flags.String("max-entry-size", humanize.IBytes(sec.MaxSingleEntryBytes), "Maximum size of a single entry (0 for unlimited)")
	flags.Bool("follow-symlinks", sec.FollowSymlinks, "Allow paths through symlinks inside the destination")
	flags.Bool("allow-symlinks", sec.AllowSymlinks, "Allow symlink entries")
	flags.Bool("allow-hardlinks", sec.AllowHardlinks, "Allow hardlink entries")
	flags.Bool("allow-setuid", sec.AllowSetuid, "Allow setuid, setgid and sticky bits")
}

// bindFlags binds the flags of the running command to their config keys.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for name, key := range keys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

// bindSecurityFlags is a PreRunE for commands with security flags.
func bindSecurityFlags(cmd *cobra.Command, _ []string) error {
	return bindFlags(cmd, securityFlags)
}
