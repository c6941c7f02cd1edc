// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/dpsprep/internal/history"
	"github.com/pdiddy/dpsprep/internal/outline"
	"github.com/pdiddy/dpsprep/internal/pdfcheck"
	"github.com/pdiddy/dpsprep/internal/tools"
	"github.com/pdiddy/dpsprep/internal/workspace"
	"github.com/pdiddy/dpsprep/pkg/types"
)

const bundledContent = "%PDF-1.4 bundled\n"

const metadataDump = `InfoBegin
InfoKey: Producer
InfoValue: pdfbeads
NumberOfPages: 3
PageMediaBegin
`

const scenarioAOutline = `(("ChapterA" "A#5" ("Sec1" "Sec1#6")) "ChapterB" "B#10")`

// fakeTools implements Tools, counting calls and writing the files the
// real programs would produce.
type fakeTools struct {
	pages     int
	outline   string
	metadata  string
	fail      map[string]error
	calls     map[string]int
	textPages []int
}

func newFakeTools() *fakeTools {
	return &fakeTools{
		pages:    3,
		outline:  scenarioAOutline,
		metadata: metadataDump,
		fail:     map[string]error{},
		calls:    map[string]int{},
	}
}

func (f *fakeTools) hit(name string) error {
	f.calls[name]++
	return f.fail[name]
}

func (f *fakeTools) Rasterize(_ context.Context, _ string, _ int, outDir string) error {
	if err := f.hit("rasterize"); err != nil {
		return err
	}
	for i := 1; i <= f.pages; i++ {
		name := filepath.Join(outDir, fmt.Sprintf(tools.PageImagePattern, i))
		if err := os.WriteFile(name, []byte("tiff"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTools) PageCount(context.Context, string) (int, error) {
	if err := f.hit("pagecount"); err != nil {
		return 0, err
	}
	return f.pages, nil
}

func (f *fakeTools) DumpOutline(_ context.Context, _, outPath string) error {
	if err := f.hit("outline"); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(f.outline), 0o644)
}

func (f *fakeTools) ExtractText(_ context.Context, _ string, page int, outPath string) error {
	if err := f.hit("text"); err != nil {
		return err
	}
	f.textPages = append(f.textPages, page)
	return os.WriteFile(outPath, []byte("<html/>"), 0o644)
}

func (f *fakeTools) Bundle(_ context.Context, _, outPath string) error {
	if err := f.hit("bundle"); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(bundledContent), 0o644)
}

func (f *fakeTools) DumpMetadata(_ context.Context, _, outPath string) error {
	if err := f.hit("dumpmeta"); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(f.metadata), 0o644)
}

// ApplyMetadata writes the edited metadata after the PDF bytes so tests
// can see what would have been applied.
func (f *fakeTools) ApplyMetadata(_ context.Context, pdfPath, metadataPath, outPath string) error {
	if err := f.hit("applymeta"); err != nil {
		return err
	}
	pdf, err := os.ReadFile(pdfPath)
	if err != nil {
		return err
	}
	meta, err := os.ReadFile(metadataPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, append(pdf, meta...), 0o644)
}

type fakeRecorder struct {
	entries []history.Entry
}

func (r *fakeRecorder) Record(_ context.Context, e history.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

type fakeInspector struct {
	rep pdfcheck.Report
	err error
}

func (i fakeInspector) Inspect(string) (pdfcheck.Report, error) { return i.rep, i.err }

type fixture struct {
	dir  string
	src  string
	dest string
	ws   *workspace.Workspace
	log  *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	ws, err := workspace.Open(filepath.Join(dir, "work"))
	require.NoError(t, err)

	src := filepath.Join(dir, "books", "a.djvu")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("AT&TFORM"), 0o644))

	return &fixture{
		dir:  dir,
		src:  src,
		dest: filepath.Join(dir, "out", "a.pdf"),
		ws:   ws,
		log:  &bytes.Buffer{},
	}
}

func (fx *fixture) orchestrator(ft *fakeTools, opts ...Option) *Orchestrator {
	cfg := types.ConversionConfig{
		Quality: 80,
		Outline: types.OutlineConfig{LevelOffset: 1},
	}
	return New(ft, fx.ws, cfg, fx.log, opts...)
}

func TestConvert_WithOutline(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	rec := &fakeRecorder{}

	res, err := fx.orchestrator(ft, WithRecorder(rec)).Convert(context.Background(), fx.src, fx.dest)
	require.NoError(t, err)

	assert.Equal(t, types.ConversionDone, res.Status)
	assert.Equal(t, types.StageDone, res.Stage)
	assert.Equal(t, 3, res.Bookmarks)
	assert.False(t, res.Resumed)

	data, err := os.ReadFile(fx.dest)
	require.NoError(t, err)
	want := bundledContent + strings.Replace(metadataDump, "NumberOfPages: 3\n",
		"NumberOfPages: 3\n"+
			"BookmarkBegin\nBookmarkTitle: ChapterA\nBookmarkLevel: 1\nBookmarkPageNumber: 5\n"+
			"BookmarkBegin\nBookmarkTitle: Sec1\nBookmarkLevel: 2\nBookmarkPageNumber: 6\n"+
			"BookmarkBegin\nBookmarkTitle: ChapterB\nBookmarkLevel: 1\nBookmarkPageNumber: 10\n", 1)
	assert.Equal(t, want, string(data))

	entries, err := os.ReadDir(fx.ws.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace should be purged on success")

	require.Len(t, rec.entries, 1)
	assert.Equal(t, types.ConversionDone, rec.entries[0].Status)
	assert.Equal(t, 3, rec.entries[0].Bookmarks)
	assert.Empty(t, rec.entries[0].Error)

	assert.Contains(t, fx.log.String(), "converted: a.djvu")
}

func TestConvert_TextForEveryPage(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.pages = 4

	_, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4}, ft.textPages)
	assert.Equal(t, 1, ft.calls["pagecount"])
}

func TestConvert_EmptyOutline(t *testing.T) {
	tests := []struct {
		name    string
		outline string
	}{
		{name: "zero-length dump", outline: ""},
		{name: "empty list", outline: "()"},
		{name: "bookmarks without entries", outline: "(bookmarks)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			ft := newFakeTools()
			ft.outline = tt.outline

			res, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
			require.NoError(t, err)

			assert.Zero(t, res.Bookmarks)
			assert.Zero(t, ft.calls["dumpmeta"], "metadata must not be dumped without an outline")
			assert.Zero(t, ft.calls["applymeta"])

			data, err := os.ReadFile(fx.dest)
			require.NoError(t, err)
			assert.Equal(t, bundledContent, string(data), "bundled PDF should be moved unchanged")
		})
	}
}

func TestConvert_Conflict(t *testing.T) {
	fx := newFixture(t)
	_, _, err := fx.ws.Claim("/elsewhere/first.djvu")
	require.NoError(t, err)

	ft := newFakeTools()
	rec := &fakeRecorder{}
	_, err = fx.orchestrator(ft, WithRecorder(rec)).Convert(context.Background(), fx.src, fx.dest)

	var cErr *workspace.ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "/elsewhere/first.djvu", cErr.InProcess)
	assert.Empty(t, ft.calls, "no stage may run for the conflicting source")
	assert.Empty(t, rec.entries)
	assert.Equal(t, ExitConflict, ExitCode(err))
}

func TestConvert_MetadataFailure(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.fail["applymeta"] = &tools.ToolError{Tool: "pdftk", Status: 7, Err: errors.New("exit status 7")}
	rec := &fakeRecorder{}

	res, err := fx.orchestrator(ft, WithRecorder(rec)).Convert(context.Background(), fx.src, fx.dest)

	var pErr *PartialError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, fx.ws.BundledPath(), pErr.Salvage)
	assert.Equal(t, types.ConversionPartial, res.Status)
	assert.Equal(t, types.StageBundled, res.Stage)
	assert.Equal(t, fx.ws.BundledPath(), res.Salvage)

	var sErr *StageError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, types.StageMetadataMerged, sErr.Stage)
	assert.Equal(t, 7, ExitCode(err))

	_, statErr := os.Stat(fx.dest)
	assert.True(t, os.IsNotExist(statErr), "destination must not be created")

	data, err := os.ReadFile(fx.ws.BundledPath())
	require.NoError(t, err)
	assert.Equal(t, bundledContent, string(data))

	st, err := fx.ws.Load()
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, types.StageBundled, st.Stage)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, types.ConversionPartial, rec.entries[0].Status)
	assert.Contains(t, rec.entries[0].Error, "bookmarks not merged")
}

func TestConvert_MalformedOutlineIsPartial(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.outline = `(bookmarks ("A" "#1")`

	_, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)

	var pErr *PartialError
	require.ErrorAs(t, err, &pErr)
	var mErr *outline.MalformedOutlineError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, 13, ExitCode(err))
	assert.Zero(t, ft.calls["applymeta"])
}

func TestConvert_StrictOutline(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.outline = `(bookmarks ("A" "#1") ("B"))`

	o := New(ft, fx.ws, types.ConversionConfig{Outline: types.OutlineConfig{Strict: true}}, fx.log)
	_, err := o.Convert(context.Background(), fx.src, fx.dest)

	var mErr *outline.MalformedOutlineError
	require.ErrorAs(t, err, &mErr)
}

func TestConvert_NoSplicePoint(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.metadata = "InfoBegin\n"

	_, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)

	require.ErrorIs(t, err, outline.ErrNoSplicePoint)
	var pErr *PartialError
	assert.ErrorAs(t, err, &pErr)
}

func TestConvert_ResumeSkipsCompletedStages(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.fail["bundle"] = &tools.ToolError{Tool: "pdfbeads", Status: -1, Err: errors.New("killed")}

	_, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
	var sErr *StageError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, types.StageBundled, sErr.Stage)
	assert.Equal(t, 12, ExitCode(err))

	st, err := fx.ws.Load()
	require.NoError(t, err)
	assert.Equal(t, types.StageTextExtracted, st.Stage)
	assert.Equal(t, 3, st.Pages)

	delete(ft.fail, "bundle")
	fx.log.Reset()
	res, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
	require.NoError(t, err)

	assert.True(t, res.Resumed)
	assert.Equal(t, 1, ft.calls["rasterize"], "rasterize must not run again")
	assert.Equal(t, 1, ft.calls["pagecount"])
	assert.Equal(t, 3, ft.calls["text"])
	assert.Equal(t, 2, ft.calls["bundle"])
	assert.Contains(t, fx.log.String(), "skipped: rasterize (already done)")
	assert.Contains(t, fx.log.String(), "resuming: a.djvu")
}

func TestConvert_ResumeAfterPartial(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.fail["dumpmeta"] = errors.New("pdftk missing")

	_, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
	require.Error(t, err)

	delete(ft.fail, "dumpmeta")
	res, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
	require.NoError(t, err)

	assert.Equal(t, types.ConversionDone, res.Status)
	assert.Equal(t, 1, ft.calls["bundle"])
	assert.Equal(t, 2, ft.calls["outline"])
	_, err = os.Stat(fx.dest)
	assert.NoError(t, err)
}

func TestConvert_ResumeAfterBundleAlreadyMoved(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.outline = ""

	// A previous run moved the bundled PDF but stopped before recording it.
	st, _, err := fx.ws.Claim(fx.src)
	require.NoError(t, err)
	require.NoError(t, fx.ws.Advance(st, types.StageBundled))
	require.NoError(t, os.MkdirAll(filepath.Dir(fx.dest), 0o755))
	require.NoError(t, os.WriteFile(fx.dest, []byte(bundledContent), 0o644))

	res, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
	require.NoError(t, err)

	assert.True(t, res.Resumed)
	assert.Equal(t, types.ConversionDone, res.Status)
	assert.Zero(t, ft.calls["bundle"])
	assert.Contains(t, fx.log.String(), "already in place")

	data, err := os.ReadFile(fx.dest)
	require.NoError(t, err)
	assert.Equal(t, bundledContent, string(data))
}

func TestConvert_EmptyOutlineWithoutBundle(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.outline = ""

	st, _, err := fx.ws.Claim(fx.src)
	require.NoError(t, err)
	require.NoError(t, fx.ws.Advance(st, types.StageBundled))

	_, err = fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
	var pErr *PartialError
	require.ErrorAs(t, err, &pErr)
}

func TestConvert_StageFailures(t *testing.T) {
	tests := []struct {
		failOn    string
		wantStage types.Stage
		wantCode  int
	}{
		{failOn: "rasterize", wantStage: types.StageRasterized, wantCode: 10},
		{failOn: "pagecount", wantStage: types.StageTextExtracted, wantCode: 11},
		{failOn: "text", wantStage: types.StageTextExtracted, wantCode: 11},
		{failOn: "bundle", wantStage: types.StageBundled, wantCode: 12},
	}
	for _, tt := range tests {
		t.Run(tt.failOn, func(t *testing.T) {
			fx := newFixture(t)
			ft := newFakeTools()
			ft.fail[tt.failOn] = errors.New("boom")

			res, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)

			var sErr *StageError
			require.ErrorAs(t, err, &sErr)
			assert.Equal(t, tt.wantStage, sErr.Stage)
			assert.Equal(t, tt.wantCode, ExitCode(err))
			assert.Equal(t, types.ConversionFailed, res.Status)

			var pErr *PartialError
			assert.False(t, errors.As(err, &pErr))
		})
	}
}

func TestConvert_ToolStatusPropagates(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	ft.fail["rasterize"] = &tools.ToolError{Tool: "ddjvu", Status: 4, Err: errors.New("exit status 4")}

	_, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
	assert.Equal(t, 4, ExitCode(err))
}

func TestConvert_ToolStatusCollidingWithReservedCode(t *testing.T) {
	tests := []struct {
		failOn   string
		status   int
		wantCode int
	}{
		{failOn: "rasterize", status: ExitConflict, wantCode: 10},
		{failOn: "bundle", status: 10, wantCode: 12},
		{failOn: "text", status: 13, wantCode: 11},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s exits %d", tt.failOn, tt.status), func(t *testing.T) {
			fx := newFixture(t)
			ft := newFakeTools()
			ft.fail[tt.failOn] = &tools.ToolError{Tool: tt.failOn, Status: tt.status, Err: fmt.Errorf("exit status %d", tt.status)}

			_, err := fx.orchestrator(ft).Convert(context.Background(), fx.src, fx.dest)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, ExitCode(err))
			assert.NotEqual(t, ExitConflict, ExitCode(err))
		})
	}
}

func TestConvert_Verify(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	cfg := types.ConversionConfig{Verify: true, Outline: types.OutlineConfig{LevelOffset: 1}}

	t.Run("report attached", func(t *testing.T) {
		insp := fakeInspector{rep: pdfcheck.Report{Pages: 3, TopLevel: 2, Bookmarks: 3}}
		res, err := New(ft, fx.ws, cfg, fx.log, WithInspector(insp)).Convert(context.Background(), fx.src, fx.dest)
		require.NoError(t, err)
		require.NotNil(t, res.Report)
		assert.Equal(t, 3, res.Report.Bookmarks)
		assert.Contains(t, fx.log.String(), "verified: 3 page(s), 3 bookmark(s)")
	})

	t.Run("failure is only a warning", func(t *testing.T) {
		insp := fakeInspector{err: errors.New("malformed xref")}
		res, err := New(ft, fx.ws, cfg, fx.log, WithInspector(insp)).Convert(context.Background(), fx.src, fx.dest)
		require.NoError(t, err)
		assert.Nil(t, res.Report)
		assert.Contains(t, fx.log.String(), "warning: could not verify")
	})
}

func TestConvert_InvalidQuality(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()
	o := New(ft, fx.ws, types.ConversionConfig{Quality: 200}, fx.log)

	_, err := o.Convert(context.Background(), fx.src, fx.dest)
	require.ErrorIs(t, err, ErrQualityRange)
	assert.Empty(t, ft.calls)
}

func TestConvert_MissingSource(t *testing.T) {
	fx := newFixture(t)
	ft := newFakeTools()

	_, err := fx.orchestrator(ft).Convert(context.Background(), filepath.Join(fx.dir, "nope.djvu"), fx.dest)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))

	st, err := fx.ws.Load()
	require.NoError(t, err)
	assert.Nil(t, st, "a missing source must not claim the workspace")
}

func TestValidateQuality(t *testing.T) {
	for _, q := range []int{50, 80, 150} {
		assert.NoError(t, ValidateQuality(q))
	}
	for _, q := range []int{0, 49, 151} {
		assert.ErrorIs(t, ValidateQuality(q), ErrQualityRange)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("disk full")))
	assert.Equal(t, ExitConflict, ExitCode(fmt.Errorf("wrapped: %w", &workspace.ConflictError{})))
}
