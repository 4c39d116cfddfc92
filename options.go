package arcguard

import (
	"log/slog"

	"github.com/meigma/arcguard/internal/archive"
	"github.com/meigma/arcguard/internal/engine"
)

// Option configures Extract, List and Verify.
type Option func(*config)

// CreateOption configures Create.
type CreateOption func(*createConfig)

// config holds the options shared by extraction and inspection.
type config struct {
	security  SecurityConfig
	policy    Policy
	overwrite bool
	digests   bool
	progress  ProgressCallback
	total     int64
	tempDir   string
	logger    *slog.Logger
}

// createConfig holds configuration for Create.
type createConfig struct {
	format  Format
	exclude []string
	force   bool
	logger  *slog.Logger
}

func newConfig(opts []Option) *config {
	cfg := &config{
		security: DefaultSecurityConfig(),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *config) archiveOptions() archive.Options {
	return archive.Options{
		MaxCompressionRatio: c.security.MaxCompressionRatio,
		TempDir:             c.tempDir,
		Logger:              c.logger,
	}
}

func (c *config) engine(operation string) (*engine.Engine, error) {
	opts := engine.Options{
		Security:      c.security,
		Policy:        c.policy,
		Overwrite:     c.overwrite,
		Digests:       c.digests,
		ProgressTotal: c.total,
		Logger:        c.logger,
	}
	if cb := c.progress; cb != nil {
		opts.Progress = func(done, total int64) {
			cb(ProgressEvent{Operation: operation, BytesTransferred: done, TotalBytes: total})
		}
	}
	return engine.New(opts)
}

// WithSecurityConfig replaces DefaultSecurityConfig.
func WithSecurityConfig(cfg SecurityConfig) Option {
	return func(c *config) {
		c.security = cfg
	}
}

// WithPolicy sets how extraction reacts to a rejected entry.
func WithPolicy(p Policy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithOverwrite allows extraction to replace existing files and links.
// Directories are never replaced and existing symlinks are never followed.
func WithOverwrite(overwrite bool) Option {
	return func(c *config) {
		c.overwrite = overwrite
	}
}

// WithDigests makes List compute a sha256 digest of every file.
func WithDigests(digests bool) Option {
	return func(c *config) {
		c.digests = digests
	}
}

// WithProgress sets a callback for extraction progress.
func WithProgress(cb ProgressCallback) Option {
	return func(c *config) {
		c.progress = cb
	}
}

// WithTempDir sets where zip input that cannot be read in place is spooled.
func WithTempDir(dir string) Option {
	return func(c *config) {
		c.tempDir = dir
	}
}

// WithLogger sets a logger. By default, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFormat sets the archive format to create. By default the format is
// inferred from the output file name.
func WithFormat(f Format) CreateOption {
	return func(c *createConfig) {
		c.format = f
	}
}

// WithExclude adds glob patterns for paths to leave out of the archive.
// Patterns match the slash-separated path relative to the source directory
// or the base name; "*" does not cross "/" and "**" does.
func WithExclude(patterns ...string) CreateOption {
	return func(c *createConfig) {
		c.exclude = append(c.exclude, patterns...)
	}
}

// WithForce allows Create to replace an existing output file.
func WithForce(force bool) CreateOption {
	return func(c *createConfig) {
		c.force = force
	}
}

// WithCreateLogger sets a logger for Create.
func WithCreateLogger(logger *slog.Logger) CreateOption {
	return func(c *createConfig) {
		c.logger = logger
	}
}
