// Package engine drives extraction and inspection sessions.
//
// An Engine pulls entries one at a time from a Source, runs each through the
// validators in a fixed order (path, link, permissions, ratio, quota) and
// then either applies it to the destination or records it in a manifest or
// verification report. Each call runs its own session; sessions share no
// mutable state.
package engine

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/arcguard/core"
	"github.com/meigma/arcguard/internal/archive"
	"github.com/meigma/arcguard/internal/progress"
)

// Source yields archive entries in order.
type Source interface {
	Next() (*core.ArchiveEntry, error)
	Open() (io.ReadCloser, error)
	Format() core.Format
}

var _ Source = (archive.EntryReader)(nil)

// Options configures an Engine.
type Options struct {
	Security core.SecurityConfig
	Policy   core.Policy

	// Overwrite replaces existing non-directory leaves instead of failing.
	Overwrite bool

	// Digests computes a sha256 content digest for files in List.
	Digests bool

	// Progress receives cumulative bytes written during Extract. The total
	// is ProgressTotal, or -1 when zero.
	Progress      progress.Callback
	ProgressTotal int64

	Logger *slog.Logger
}

// Engine runs sessions with a fixed configuration. It is safe for
// concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if err := opts.Security.Validate(); err != nil {
		return nil, fmt.Errorf("invalid security config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{opts: opts, logger: logger}, nil
}

// Security returns the configuration the engine validates against.
func (e *Engine) Security() core.SecurityConfig {
	return e.opts.Security
}
