package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/arcguard/core"
	"github.com/meigma/arcguard/internal/archive"
	"github.com/meigma/arcguard/internal/quota"
	"github.com/meigma/arcguard/internal/safepath"
	"github.com/meigma/arcguard/internal/validate"
)

// List returns the manifest of src without writing anything. Entry paths in
// the manifest are normalized. Path violations and unsafe permissions abort
// with the same errors extraction would return; suspicious permissions are
// logged and tolerated.
func (e *Engine) List(ctx context.Context, src Source) (core.ArchiveManifest, error) {
	manifest := core.ArchiveManifest{
		Format:  src.Format(),
		Entries: []core.ArchiveEntry{},
	}
	var buf []byte
	if e.opts.Digests {
		buf = make([]byte, archive.CopyBufferSize)
	}

	for {
		if err := ctx.Err(); err != nil {
			return manifest, err
		}
		entry, err := src.Next()
		if errors.Is(err, io.EOF) {
			return manifest, nil
		}
		if err != nil {
			return manifest, err
		}
		if entry.Type == core.EntryDir && safepath.IsRoot(entry.Path) {
			continue
		}

		rel, err := validate.LexicalPath(entry)
		if err != nil {
			return manifest, err
		}
		if err := validate.Permissions(entry, e.opts.Security); err != nil {
			if !core.IsWarning(err) {
				return manifest, err
			}
			e.logger.Warn("entry warning", "path", rel, "error", err)
		}

		out := *entry
		out.Path = rel
		if e.opts.Digests && entry.Type == core.EntryFile {
			d, err := digestEntry(ctx, src, buf)
			if err != nil {
				return manifest, &core.EntryError{Op: "digest", Path: entry.Path, Err: err}
			}
			out.Digest = d.String()
		}
		manifest.Entries = append(manifest.Entries, out)
	}
}

func digestEntry(ctx context.Context, src Source, buf []byte) (digest.Digest, error) {
	rc, err := src.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	digester := digest.Canonical.Digester()
	if _, err := archive.Copy(ctx, digester.Hash(), rc, buf); err != nil {
		return "", err
	}
	return digester.Digest(), nil
}

// Verify runs every validator over the declared metadata of src and records
// each would-be failure as an issue instead of stopping. Only context
// cancellation returns an error; a stream that cannot be read further is
// reported as a final Fail issue. An entry the source fails to read but can
// step past (a *core.EntryError from Next) is reported under its own path
// and the pass continues.
//
// Symlinks declared earlier in the archive are tracked in memory, so later
// entries that pass through them are judged as extraction would judge them.
// With no destination to anchor to, an absolute symlink target is always
// reported as a symlink escape, even with FollowSymlinks, where extraction
// would accept one that lies under its destination.
func (e *Engine) Verify(ctx context.Context, src Source) (core.VerificationReport, error) {
	v := &verifier{
		cfg:      e.opts.Security,
		links:    validate.NewLinkTable(),
		tree:     safepath.NewTree(),
		quota:    quota.New(e.opts.Security),
		reported: make(map[core.QuotaResource]bool),
		report: core.VerificationReport{
			Format: src.Format(),
			Issues: []core.VerificationIssue{},
		},
	}

	for {
		if err := ctx.Err(); err != nil {
			return v.report, err
		}
		entry, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return v.report, ctxErr
			}
			var entryErr *core.EntryError
			if errors.As(err, &entryErr) {
				v.report.TotalEntries++
				v.add(entryErr.Path, err)
				continue
			}
			v.add("", err)
			break
		}
		if entry.Type == core.EntryDir && safepath.IsRoot(entry.Path) {
			continue
		}
		v.check(entry)
	}

	e.logger.Info("verification complete",
		"format", v.report.Format,
		"status", v.report.Status,
		"entries", v.report.TotalEntries,
		"issues", len(v.report.Issues))
	return v.report, nil
}

// verifier holds the in-pass state of one Verify call.
type verifier struct {
	cfg      core.SecurityConfig
	links    *validate.LinkTable
	tree     *safepath.Tree
	quota    *quota.Accountant
	reported map[core.QuotaResource]bool
	report   core.VerificationReport
}

func (v *verifier) check(e *core.ArchiveEntry) {
	v.report.TotalEntries++
	if e.Type == core.EntryFile && e.Size > 0 {
		v.report.TotalBytes += uint64(e.Size)
	}

	display := e.Path
	if rel, err := validate.LexicalPath(e); err != nil {
		v.add(display, err)
	} else {
		display = rel
		if at, err := validate.TreePath(v.tree, rel, e, v.cfg); err != nil {
			v.add(rel, err)
		} else {
			v.checkType(rel, at, e)
		}
	}

	if err := validate.Permissions(e, v.cfg); err != nil {
		v.add(display, err)
	}
	if err := validate.CompressionRatio(e, v.cfg); err != nil {
		v.add(display, err)
	}

	var size int64
	if e.Type == core.EntryFile {
		size = e.Size
	}
	if err := v.quota.Admit(display, size); err != nil {
		var qe *core.QuotaError
		// Cumulative limits stay exceeded once crossed; report them once.
		if errors.As(err, &qe) && qe.Resource != core.QuotaSingleEntrySize {
			if v.reported[qe.Resource] {
				return
			}
			v.reported[qe.Resource] = true
		}
		v.add(display, err)
	}
}

// checkType runs the type-specific checks for an entry whose path rel
// resolves to at.
func (v *verifier) checkType(rel, at string, e *core.ArchiveEntry) {
	switch e.Type {
	case core.EntryFile:
		v.links.AddRel(rel)
	case core.EntryDir:
		v.links.Remove(rel)
	case core.EntrySymlink:
		v.links.Remove(rel)
		if err := validate.LexicalSymlink(v.tree, rel, at, e, v.cfg); err != nil {
			v.add(rel, err)
		}
	case core.EntryHardlink:
		if err := validate.LexicalHardlink(e, v.cfg, v.links); err != nil {
			v.add(rel, err)
			return
		}
		v.links.AddRel(rel)
	default:
		v.add(rel, fmt.Errorf("%w: %s", core.ErrUnsupportedEntry, e.Path))
	}
}

func (v *verifier) add(path string, err error) {
	severity := core.SeverityFail
	if core.IsWarning(err) {
		severity = core.SeverityWarning
	}
	category := core.Category(err)
	if category == "" {
		category = core.Category(core.ErrCorruptArchive)
	}
	v.report.Add(core.VerificationIssue{
		Severity: severity,
		Category: category,
		Path:     path,
		Message:  err.Error(),
	})
}
