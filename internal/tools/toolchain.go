// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/dpsprep/pkg/types"
)

const (
	binDdjvu     = "ddjvu"
	binDjvused   = "djvused"
	binDjvu2hocr = "djvu2hocr"
	binPdfbeads  = "pdfbeads"
	binPdftk     = "pdftk"
)

// PageImagePattern names rasterized pages; ddjvu expands the verb with
// the 1-based page number.
const PageImagePattern = "pg%06d.tif"

// PageTextName returns the hOCR file name for page, matching the image
// name so pdfbeads pairs them.
func PageTextName(page int) string {
	return fmt.Sprintf("pg%06d.html", page)
}

// Rasterizer renders every page of a DJVU document to an image file.
type Rasterizer interface {
	// Rasterize writes one TIFF per page of src into outDir.
	Rasterize(ctx context.Context, src string, quality int, outDir string) error
}

// OutlineExtractor reads document structure from a DJVU file.
type OutlineExtractor interface {
	// PageCount returns the number of pages in src.
	PageCount(ctx context.Context, src string) (int, error)

	// DumpOutline writes the outline S-expression of src to outPath. A
	// document without an outline produces an empty file.
	DumpOutline(ctx context.Context, src, outPath string) error
}

// TextExtractor pulls the hidden text layer of a single page.
type TextExtractor interface {
	// ExtractText writes the hOCR text layer of page (1-based) to outPath.
	ExtractText(ctx context.Context, src string, page int, outPath string) error
}

// Bundler combines per-page images and text layers into one PDF.
type Bundler interface {
	// Bundle reads the pages in pagesDir and writes a PDF to outPath.
	Bundle(ctx context.Context, pagesDir, outPath string) error
}

// MetadataTool reads and rewrites PDF document metadata.
type MetadataTool interface {
	// DumpMetadata writes the metadata of pdfPath as text to outPath.
	DumpMetadata(ctx context.Context, pdfPath, outPath string) error

	// ApplyMetadata writes a copy of pdfPath with the metadata text in
	// metadataPath applied to outPath.
	ApplyMetadata(ctx context.Context, pdfPath, metadataPath, outPath string) error
}

// Toolchain implements every collaborator interface by running the
// command-line tools named in its configuration.
type Toolchain struct {
	ddjvu     string
	djvused   string
	djvu2hocr string
	pdfbeads  string
	pdftk     string
	timeout   time.Duration
	stderr    io.Writer
	exec      executor
}

var defaultExec = &osExecutor{}

// New returns a Toolchain for cfg. Tool diagnostics go to stderr.
func New(cfg types.ToolsConfig, stderr io.Writer) *Toolchain {
	return newToolchain(cfg, stderr, defaultExec)
}

func newToolchain(cfg types.ToolsConfig, stderr io.Writer, exec executor) *Toolchain {
	if stderr == nil {
		stderr = io.Discard
	}
	return &Toolchain{
		ddjvu:     orDefault(cfg.Ddjvu, binDdjvu),
		djvused:   orDefault(cfg.Djvused, binDjvused),
		djvu2hocr: orDefault(cfg.Djvu2hocr, binDjvu2hocr),
		pdfbeads:  orDefault(cfg.Pdfbeads, binPdfbeads),
		pdftk:     orDefault(cfg.Pdftk, binPdftk),
		timeout:   cfg.Timeout,
		stderr:    stderr,
		exec:      exec,
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Binaries returns the configured program names in pipeline order.
func (t *Toolchain) Binaries() []string {
	return []string{t.ddjvu, t.djvused, t.djvu2hocr, t.pdfbeads, t.pdftk}
}

// Missing returns the configured programs that cannot be found on PATH.
func (t *Toolchain) Missing() []string {
	var missing []string
	for _, bin := range t.Binaries() {
		if _, err := t.exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return missing
}

func (t *Toolchain) run(ctx context.Context, inv invocation) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if inv.stderr == nil {
		inv.stderr = t.stderr
	}
	return toolError(inv.name, inv.args, t.exec.Run(ctx, inv))
}

// runToFile runs inv with stdout redirected to path.
func (t *Toolchain) runToFile(ctx context.Context, inv invocation, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	inv.stdout = f
	runErr := t.run(ctx, inv)
	if err := f.Close(); err != nil && runErr == nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return runErr
}

func (t *Toolchain) Rasterize(ctx context.Context, src string, quality int, outDir string) error {
	args := []string{
		"-v",
		"-eachpage",
		"-quality=" + strconv.Itoa(quality),
		"-format=tiff",
		src,
		filepath.Join(outDir, PageImagePattern),
	}
	return t.run(ctx, invocation{name: t.ddjvu, args: args, stdout: t.stderr})
}

func (t *Toolchain) PageCount(ctx context.Context, src string) (int, error) {
	var out bytes.Buffer
	args := []string{src, "-u", "-e", "n"}
	if err := t.run(ctx, invocation{name: t.djvused, args: args, stdout: &out}); err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out.String()))
	if err != nil {
		return 0, fmt.Errorf("parsing page count %q from %s: %w", strings.TrimSpace(out.String()), t.djvused, err)
	}
	return n, nil
}

func (t *Toolchain) DumpOutline(ctx context.Context, src, outPath string) error {
	args := []string{src, "-u", "-e", "print-outline"}
	return t.runToFile(ctx, invocation{name: t.djvused, args: args}, outPath)
}

// ExtractText runs djvu2hocr for one page. Its output tags words with the
// ocrx_word class, which pdfbeads does not know; those become ocr_word.
func (t *Toolchain) ExtractText(ctx context.Context, src string, page int, outPath string) error {
	var out bytes.Buffer
	args := []string{"-p", strconv.Itoa(page), src}
	if err := t.run(ctx, invocation{name: t.djvu2hocr, args: args, stdout: &out}); err != nil {
		return err
	}
	text := strings.ReplaceAll(out.String(), "ocrx", "ocr")
	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	return nil
}

// Bundle hands pdfbeads the page images in pagesDir; it picks up the
// hOCR file sharing each image's base name.
func (t *Toolchain) Bundle(ctx context.Context, pagesDir, outPath string) error {
	images, err := filepath.Glob(filepath.Join(pagesDir, "*.tif"))
	if err != nil {
		return fmt.Errorf("listing page images: %w", err)
	}
	if len(images) == 0 {
		return fmt.Errorf("no page images in %s", pagesDir)
	}
	sort.Strings(images)

	args := make([]string, len(images))
	for i, img := range images {
		args[i] = filepath.Base(img)
	}
	return t.runToFile(ctx, invocation{name: t.pdfbeads, args: args, dir: pagesDir}, outPath)
}

func (t *Toolchain) DumpMetadata(ctx context.Context, pdfPath, outPath string) error {
	args := []string{pdfPath, "dump_data_utf8", "output", outPath}
	return t.run(ctx, invocation{name: t.pdftk, args: args, stdout: t.stderr})
}

func (t *Toolchain) ApplyMetadata(ctx context.Context, pdfPath, metadataPath, outPath string) error {
	args := []string{pdfPath, "update_info_utf8", metadataPath, "output", outPath}
	return t.run(ctx, invocation{name: t.pdftk, args: args, stdout: t.stderr})
}
