package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"github.com/meigma/arcguard/core"
	"github.com/meigma/arcguard/internal/archive"
	"github.com/meigma/arcguard/internal/progress"
	"github.com/meigma/arcguard/internal/quota"
	"github.com/meigma/arcguard/internal/safepath"
	"github.com/meigma/arcguard/internal/validate"
)

// Extract writes the entries of src below destDir.
//
// The returned report is filled in as far as the session got, including on
// error. Nothing already written is rolled back.
func (e *Engine) Extract(ctx context.Context, src Source, destDir string) (core.ExtractionReport, error) {
	start := time.Now()
	report := core.ExtractionReport{Format: src.Format()}

	dest, err := safepath.NewDestDir(destDir)
	if err != nil {
		return report, err
	}

	s := e.newSession(dest, src, &report)
	err = s.run(ctx)
	report.Duration = time.Since(start)
	if err != nil {
		return report, err
	}

	e.logger.Info("extraction complete",
		"format", report.Format,
		"files", report.Files,
		"dirs", report.Dirs,
		"bytes", report.BytesWritten,
		"skipped", len(report.Skipped),
		"warnings", len(report.Warnings))
	return report, nil
}

// session holds the mutable state of one extraction.
type session struct {
	cfg       core.SecurityConfig
	policy    core.Policy
	overwrite bool
	logger    *slog.Logger

	dest    safepath.DestDir
	src     Source
	links   *validate.LinkTable
	quota   *quota.Accountant
	tracker *progress.Tracker
	report  *core.ExtractionReport

	buf         []byte
	createdDirs map[string]struct{}
}

func (e *Engine) newSession(dest safepath.DestDir, src Source, report *core.ExtractionReport) *session {
	total := e.opts.ProgressTotal
	if total <= 0 {
		total = -1
	}
	return &session{
		cfg:         e.opts.Security,
		policy:      e.opts.Policy,
		overwrite:   e.opts.Overwrite,
		logger:      e.logger,
		dest:        dest,
		src:         src,
		links:       validate.NewLinkTable(),
		quota:       quota.New(e.opts.Security),
		tracker:     progress.NewTracker(total, e.opts.Progress),
		report:      report,
		buf:         make([]byte, archive.CopyBufferSize),
		createdDirs: make(map[string]struct{}),
	}
}

func (s *session) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry, err := s.src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.Type == core.EntryDir && safepath.IsRoot(entry.Path) {
			continue
		}

		p, err := s.validate(entry)
		if err != nil {
			if !s.skippable(err) {
				return err
			}
			s.skip(entry, err)
			continue
		}
		if err := s.apply(ctx, p); err != nil {
			return err
		}
	}
}

// plan is an entry that passed every validator.
type plan struct {
	entry   *core.ArchiveEntry
	path    safepath.SafePath
	symlink safepath.SafeSymlink
	link    validate.Link
}

// validate runs the validators in order. Nothing touches the destination
// until every check has passed.
func (s *session) validate(e *core.ArchiveEntry) (*plan, error) {
	if e.Type == core.EntryOther {
		return nil, &core.EntryError{Op: "extract", Path: e.Path, Err: core.ErrUnsupportedEntry}
	}

	p := &plan{entry: e}
	var err error
	switch e.Type {
	case core.EntrySymlink:
		p.symlink, err = validate.Symlink(s.dest, e, s.cfg)
		p.path = p.symlink.Link()
	case core.EntryHardlink:
		p.link, err = validate.Hardlink(s.dest, e, s.cfg, s.links)
		p.path = p.link.Path
	default:
		p.path, err = validate.Path(s.dest, e, s.cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := validate.Permissions(e, s.cfg); err != nil {
		if !core.IsWarning(err) {
			return nil, err
		}
		s.warn(err)
	}
	if err := validate.CompressionRatio(e, s.cfg); err != nil {
		return nil, err
	}

	var size int64
	if e.Type == core.EntryFile {
		size = e.Size
	}
	if err := s.quota.Admit(e.Path, size); err != nil {
		var qe *core.QuotaError
		if errors.As(err, &qe) {
			return nil, &core.EntryError{Op: "quota", Path: e.Path, Err: err}
		}
		return nil, err
	}
	return p, nil
}

// skippable reports whether err may be recorded and skipped under the
// session policy. Quota errors always abort.
func (s *session) skippable(err error) bool {
	if s.policy != core.PolicySkipAndReport {
		return false
	}
	return core.IsSecurityError(err) && !errors.Is(err, core.ErrQuotaExceeded)
}

func (s *session) skip(e *core.ArchiveEntry, err error) {
	s.logger.Warn("skipping entry", "path", e.Path, "category", core.Category(err), "error", err)
	s.report.Skipped = append(s.report.Skipped, core.SkippedEntry{Path: e.Path, Reason: err.Error()})
}

func (s *session) warn(err error) {
	s.logger.Warn("entry warning", "category", core.Category(err), "error", err)
	s.report.Warnings = append(s.report.Warnings, err.Error())
}

func (s *session) apply(ctx context.Context, p *plan) error {
	e := p.entry
	s.logger.Debug("extracting entry", "path", p.path.Rel(), "type", e.Type, "size", e.Size)

	var err error
	switch e.Type {
	case core.EntryDir:
		err = s.writeDir(p.path, s.mode(e))
		if err == nil {
			s.links.Remove(p.path.Rel())
			s.report.Dirs++
		}
	case core.EntryFile:
		var n int64
		n, err = s.writeFile(ctx, p.path, e.Size, s.mode(e))
		s.report.BytesWritten += n
		if err == nil {
			s.links.Add(p.path)
			s.report.Files++
		}
	case core.EntrySymlink:
		err = s.writeSymlink(p.symlink)
		if err == nil {
			s.links.Remove(p.path.Rel())
			s.report.Symlinks++
		}
	case core.EntryHardlink:
		err = s.writeHardlink(p.link)
		if err == nil {
			s.links.Add(p.path)
			s.report.Hardlinks++
		}
	default:
		err = fmt.Errorf("%w: %s", core.ErrUnsupportedEntry, e.Type)
	}
	if err != nil {
		var entryErr *core.EntryError
		if errors.As(err, &entryErr) {
			return err
		}
		return &core.EntryError{Op: "extract", Path: e.Path, Err: err}
	}
	return nil
}

// mode returns the mode to apply: permission bits, plus setuid, setgid and
// sticky only when allowed.
func (s *session) mode(e *core.ArchiveEntry) fs.FileMode {
	m := e.Mode.Perm()
	if s.cfg.AllowSetuid {
		m |= e.Mode & (fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky)
	}
	if e.Type == core.EntryDir {
		m |= 0o700
	}
	return m
}
