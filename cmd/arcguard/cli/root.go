// Package cli implements the arcguard command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/arcguard"
	"github.com/meigma/arcguard/cmd/arcguard/cli/config"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	cfgFile string
	verbose bool
)

// configErr holds a config file read failure, reported once a command runs.
var configErr error

// errVerificationFailed is returned by verify when the report is FAIL.
var errVerificationFailed = errors.New("verification failed")

var rootCmd = &cobra.Command{
	Use:   "arcguard",
	Short: "Inspect and safely extract tar and zip archives",
	Long: `Arcguard extracts tar and zip archives without letting a hostile archive
write outside the destination directory.

Every entry is checked for path traversal, symlink and hardlink escapes,
unsafe permissions, compression bombs and size quotas before anything is
written. The same checks can be run without extracting via verify.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error { return configErr },
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Archive Commands:"})

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/arcguard/config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.StringP("output", "o", "text", "Output format (text, json, yaml)")
	flags.String("progress", "auto", "Progress display (auto, tty, plain)")
	_ = viper.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))
	_ = viper.BindPFlag(config.KeyOutput, flags.Lookup("output"))
	_ = viper.BindPFlag(config.KeyProgress, flags.Lookup("progress"))

	_ = rootCmd.RegisterFlagCompletionFunc("output", fixedCompletion("text", "json", "yaml"))
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", fixedCompletion("text", "json"))
	_ = rootCmd.RegisterFlagCompletionFunc("progress", fixedCompletion("auto", "tty", "plain"))

	rootCmd.Version = version
}

// initConfig layers defaults, the config file and ARCGUARD_ environment
// variables under the command-line flags.
func initConfig() {
	for key, value := range config.Defaults() {
		viper.SetDefault(key, value)
	}

	viper.SetEnvPrefix("ARCGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := config.Dir()
		if err != nil {
			return
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configErr = fmt.Errorf("read config: %w", err)
		}
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// loadConfig returns the effective configuration.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the CLI logger. Logs go to stderr so they never mix with
// command output.
func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.LogFormat {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", cfg.LogFormat)
	}
}

// libraryOptions converts the effective configuration to arcguard options.
func libraryOptions(cfg config.Config) ([]arcguard.Option, error) {
	security, err := cfg.Security.Resolve()
	if err != nil {
		return nil, err
	}
	policy, err := arcguard.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	return []arcguard.Option{
		arcguard.WithSecurityConfig(security),
		arcguard.WithPolicy(policy),
		arcguard.WithLogger(logger),
	}, nil
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// formatError converts arcguard errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	var bomb *arcguard.ZipBombError
	var quota *arcguard.QuotaError
	switch {
	case errors.Is(err, errVerificationFailed):
		return "Error: verification failed"
	case errors.As(err, &bomb):
		return fmt.Sprintf("Error: compression bomb detected in %s (ratio %.0f exceeds limit %.0f)", bomb.Path, bomb.Ratio, bomb.Limit)
	case errors.As(err, &quota):
		return fmt.Sprintf("Error: quota exceeded: %s (%d > %d)", quota.Resource, quota.Observed, quota.Limit)
	case errors.Is(err, arcguard.ErrPathTraversal):
		return fmt.Sprintf("Error: path traversal detected (security violation): %v", err)
	case errors.Is(err, arcguard.ErrSymlinkEscape), errors.Is(err, arcguard.ErrHardlinkEscape):
		return fmt.Sprintf("Error: link escapes the destination (security violation): %v", err)
	case errors.Is(err, arcguard.ErrUnsafePermissions):
		return fmt.Sprintf("Error: unsafe permissions (security violation): %v", err)
	case errors.Is(err, arcguard.ErrUnsupportedFormat):
		return fmt.Sprintf("Error: unsupported archive format: %v", err)
	case errors.Is(err, arcguard.ErrCorruptArchive):
		return fmt.Sprintf("Error: invalid or corrupt archive: %v", err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Sprintf("Error: already exists: %v", err)
	case errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// fixedCompletion completes a flag from a fixed set of values.
func fixedCompletion(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}
