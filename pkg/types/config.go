// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

const (
	// DefaultQuality is the ddjvu JPEG quality used when none is given.
	DefaultQuality = 80
	// MinQuality and MaxQuality bound the accepted quality range.
	MinQuality = 50
	MaxQuality = 150
)

// ToolsConfig names the external binaries the pipeline shells out to.
// Empty fields fall back to the binary's usual name on PATH.
type ToolsConfig struct {
	// Ddjvu rasterizes DJVU pages to TIFF.
	Ddjvu string `json:"ddjvu" yaml:"ddjvu"`

	// Djvused dumps the outline and the page count.
	Djvused string `json:"djvused" yaml:"djvused"`

	// Djvu2hocr extracts the hidden text layer of one page as hOCR.
	Djvu2hocr string `json:"djvu2hocr" yaml:"djvu2hocr"`

	// Pdfbeads bundles page images and hOCR files into a PDF.
	Pdfbeads string `json:"pdfbeads" yaml:"pdfbeads"`

	// Pdftk dumps and applies PDF metadata.
	Pdftk string `json:"pdftk" yaml:"pdftk"`

	// Timeout bounds each individual tool invocation. Zero disables it.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// OutlineConfig controls how the DJVU outline becomes PDF bookmarks.
type OutlineConfig struct {
	// LevelOffset is added to every bookmark level on serialization.
	// pdftk numbers top-level bookmarks 1, so the default is 1.
	LevelOffset int `json:"level_offset" yaml:"level_offset"`

	// Strict rejects outlines whose titles and targets do not pair up
	// instead of flattening them leniently.
	Strict bool `json:"strict" yaml:"strict"`
}

// ConversionConfig holds settings for one run of the conversion pipeline.
type ConversionConfig struct {
	// Quality is the ddjvu compression quality, 50-150 (default 80).
	Quality int `json:"quality" yaml:"quality"`

	// WorkspaceDir holds intermediate artifacts and the state record.
	WorkspaceDir string `json:"workspace_dir" yaml:"workspace_dir"`

	// HistoryDB is the path to the SQLite conversion history. Empty
	// disables history recording.
	HistoryDB string `json:"history_db" yaml:"history_db"`

	// Verify opens the finished PDF and reports its pages and outline.
	Verify bool `json:"verify" yaml:"verify"`

	Tools   ToolsConfig   `json:"tools" yaml:"tools"`
	Outline OutlineConfig `json:"outline" yaml:"outline"`
}
