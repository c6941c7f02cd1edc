// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline converts DJVU documents to PDF by driving the external
// tools stage by stage, resuming where an interrupted run stopped, and
// merging the DJVU outline into the PDF bookmarks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pdiddy/dpsprep/internal/history"
	"github.com/pdiddy/dpsprep/internal/outline"
	"github.com/pdiddy/dpsprep/internal/pdfcheck"
	"github.com/pdiddy/dpsprep/internal/tools"
	"github.com/pdiddy/dpsprep/internal/workspace"
	"github.com/pdiddy/dpsprep/pkg/types"
)

// Tools is the full set of external collaborators a conversion needs.
// *tools.Toolchain implements it.
type Tools interface {
	tools.Rasterizer
	tools.OutlineExtractor
	tools.TextExtractor
	tools.Bundler
	tools.MetadataTool
}

// Recorder stores conversion outcomes. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Result describes one conversion.
type Result struct {
	Source      string
	Destination string
	Status      types.ConversionStatus

	// Stage is the last stage completed.
	Stage types.Stage

	// Resumed is set when earlier stages were found complete.
	Resumed bool

	Bookmarks int

	// Salvage is the intermediate PDF left behind by a partial conversion.
	Salvage string

	// Report is set when verification ran and succeeded.
	Report *pdfcheck.Report
}

// Orchestrator runs conversions in one workspace.
type Orchestrator struct {
	tools     Tools
	ws        *workspace.Workspace
	cfg       types.ConversionConfig
	inspector pdfcheck.Inspector
	recorder  Recorder
	w         io.Writer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithInspector verifies each finished PDF with i.
func WithInspector(i pdfcheck.Inspector) Option {
	return func(o *Orchestrator) { o.inspector = i }
}

// WithRecorder records every outcome with r.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New returns an Orchestrator. Progress lines are written to w.
func New(t Tools, ws *workspace.Workspace, cfg types.ConversionConfig, w io.Writer, opts ...Option) *Orchestrator {
	if cfg.Quality == 0 {
		cfg.Quality = types.DefaultQuality
	}
	if w == nil {
		w = io.Discard
	}
	o := &Orchestrator{tools: t, ws: ws, cfg: cfg, w: w}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Convert turns the DJVU document at src into a PDF at dest. Stages
// already completed for src in the workspace are skipped. On failure the
// workspace is left as is so the next call resumes; on success it is
// emptied.
func (o *Orchestrator) Convert(ctx context.Context, src, dest string) (Result, error) {
	if err := ValidateQuality(o.cfg.Quality); err != nil {
		return Result{}, err
	}

	src, err := filepath.Abs(src)
	if err != nil {
		return Result{}, fmt.Errorf("resolving %s: %w", src, err)
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return Result{}, fmt.Errorf("resolving %s: %w", dest, err)
	}
	if _, err := os.Stat(src); err != nil {
		return Result{}, fmt.Errorf("reading source: %w", err)
	}

	st, resumed, err := o.ws.Claim(src)
	if err != nil {
		return Result{}, err
	}

	res := Result{Source: src, Destination: dest, Stage: st.Stage, Resumed: resumed}
	if resumed {
		fmt.Fprintf(o.w, "resuming: %s (completed: %s)\n", filepath.Base(src), st.Stage)
	}

	err = o.run(ctx, st, &res)
	res.Stage = st.Stage
	switch {
	case err == nil:
		res.Status = types.ConversionDone
	case errors.As(err, new(*PartialError)):
		res.Status = types.ConversionPartial
	default:
		res.Status = types.ConversionFailed
	}
	o.record(ctx, res, err)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, st *workspace.State, res *Result) error {
	steps := []struct {
		stage types.Stage
		name  string
		fn    func(context.Context, *workspace.State) error
	}{
		{types.StageRasterized, "rasterize", o.rasterize},
		{types.StageTextExtracted, "text layer", o.extractText},
		{types.StageBundled, "bundle", o.bundle},
	}

	for _, s := range steps {
		if st.Stage.Reached(s.stage) {
			fmt.Fprintf(o.w, "skipped: %s (already done)\n", s.name)
			continue
		}
		if err := s.fn(ctx, st); err != nil {
			return &StageError{Stage: s.stage, Err: err}
		}
		if err := o.ws.Advance(st, s.stage); err != nil {
			return err
		}
	}

	if !st.Stage.Reached(types.StageMetadataMerged) {
		n, err := o.mergeOutline(ctx, st, res.Destination)
		if err != nil {
			res.Salvage = o.ws.BundledPath()
			return &PartialError{
				Salvage: res.Salvage,
				Err:     &StageError{Stage: types.StageMetadataMerged, Err: err},
			}
		}
		res.Bookmarks = n
		if err := o.ws.Advance(st, types.StageMetadataMerged); err != nil {
			return err
		}
	}

	if o.cfg.Verify && o.inspector != nil {
		o.verify(res)
	}

	if err := o.ws.Purge(); err != nil {
		return err
	}
	st.Stage = types.StageDone
	fmt.Fprintf(o.w, "converted: %s -> %s\n", filepath.Base(res.Source), res.Destination)
	return nil
}

func (o *Orchestrator) rasterize(ctx context.Context, st *workspace.State) error {
	if err := os.MkdirAll(o.ws.PagesDir(), 0o755); err != nil {
		return fmt.Errorf("creating pages directory: %w", err)
	}
	if err := o.tools.Rasterize(ctx, st.Source, o.cfg.Quality, o.ws.PagesDir()); err != nil {
		return err
	}
	fmt.Fprintf(o.w, "rasterized: %s (quality %d)\n", filepath.Base(st.Source), o.cfg.Quality)
	return nil
}

func (o *Orchestrator) extractText(ctx context.Context, st *workspace.State) error {
	n, err := o.tools.PageCount(ctx, st.Source)
	if err != nil {
		return err
	}
	st.Pages = n

	for page := 1; page <= n; page++ {
		out := filepath.Join(o.ws.PagesDir(), tools.PageTextName(page))
		if err := o.tools.ExtractText(ctx, st.Source, page, out); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
	}
	fmt.Fprintf(o.w, "text layer: %d page(s)\n", n)
	return nil
}

func (o *Orchestrator) bundle(ctx context.Context, st *workspace.State) error {
	if err := o.tools.Bundle(ctx, o.ws.PagesDir(), o.ws.BundledPath()); err != nil {
		return err
	}
	fmt.Fprintf(o.w, "bundled: %s\n", o.ws.BundledPath())
	return nil
}

// mergeOutline writes the final PDF to dest, with the DJVU outline as
// bookmarks when there is one. It returns the number of bookmarks.
func (o *Orchestrator) mergeOutline(ctx context.Context, st *workspace.State, dest string) (int, error) {
	if err := o.tools.DumpOutline(ctx, st.Source, o.ws.OutlinePath()); err != nil {
		return 0, err
	}

	empty, err := workspace.Empty(o.ws.OutlinePath())
	if err != nil {
		return 0, err
	}
	if empty {
		fmt.Fprintln(o.w, "outline: none present")
		return 0, o.place(dest)
	}

	bookmarks, err := o.translate()
	if err != nil {
		return 0, err
	}
	if len(bookmarks) == 0 {
		fmt.Fprintln(o.w, "outline: no bookmarks")
		return 0, o.place(dest)
	}
	fmt.Fprintf(o.w, "outline: %d bookmark(s)\n", len(bookmarks))

	if err := o.tools.DumpMetadata(ctx, o.ws.BundledPath(), o.ws.MetadataDumpPath()); err != nil {
		return 0, err
	}
	metadata, err := os.ReadFile(o.ws.MetadataDumpPath())
	if err != nil {
		return 0, fmt.Errorf("reading metadata dump: %w", err)
	}

	edited, err := outline.Splice(string(metadata), outline.SerializeOffset(bookmarks, o.cfg.Outline.LevelOffset))
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(o.ws.MetadataEditPath(), []byte(edited), 0o644); err != nil {
		return 0, fmt.Errorf("writing edited metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	if err := o.tools.ApplyMetadata(ctx, o.ws.BundledPath(), o.ws.MetadataEditPath(), dest); err != nil {
		return 0, err
	}
	return len(bookmarks), nil
}

func (o *Orchestrator) translate() ([]types.Bookmark, error) {
	f, err := os.Open(o.ws.OutlinePath())
	if err != nil {
		return nil, fmt.Errorf("opening outline dump: %w", err)
	}
	defer f.Close()

	root, err := outline.Parse(f)
	if err != nil {
		return nil, err
	}
	if o.cfg.Outline.Strict {
		return outline.FlattenStrict(root)
	}
	return outline.Flatten(root), nil
}

// place moves the bundled PDF to dest unchanged. A bundled PDF that is
// already gone while dest exists means an earlier run moved it before
// its state was saved.
func (o *Orchestrator) place(dest string) error {
	if _, err := os.Stat(o.ws.BundledPath()); errors.Is(err, fs.ErrNotExist) {
		if _, err := os.Stat(dest); err == nil {
			fmt.Fprintf(o.w, "moved: %s (already in place)\n", dest)
			return nil
		}
	}
	if err := moveFile(o.ws.BundledPath(), dest); err != nil {
		return err
	}
	fmt.Fprintf(o.w, "moved: %s\n", dest)
	return nil
}

func (o *Orchestrator) verify(res *Result) {
	rep, err := o.inspector.Inspect(res.Destination)
	if err != nil {
		fmt.Fprintf(o.w, "  warning: could not verify %s: %v\n", res.Destination, err)
		return
	}
	res.Report = &rep
	fmt.Fprintf(o.w, "verified: %d page(s), %d bookmark(s)\n", rep.Pages, rep.Bookmarks)
}

func (o *Orchestrator) record(ctx context.Context, res Result, convErr error) {
	if o.recorder == nil {
		return
	}
	e := history.Entry{
		Source:      res.Source,
		Destination: res.Destination,
		Stage:       res.Stage,
		Status:      res.Status,
		Bookmarks:   res.Bookmarks,
	}
	if convErr != nil {
		e.Error = convErr.Error()
	}
	if err := o.recorder.Record(ctx, e); err != nil {
		fmt.Fprintf(o.w, "  warning: %v\n", err)
	}
}

// moveFile renames src to dst, copying when they sit on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("moving %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("moving %s: %w", src, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("moving %s: %w", src, err)
	}
	return os.Remove(src)
}
