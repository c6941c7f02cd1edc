// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ConversionStatus is the outcome of converting one DJVU document.
type ConversionStatus string

const (
	// ConversionNone means the document was skipped because its PDF
	// already exists.
	ConversionNone ConversionStatus = "none"
	// ConversionDone means the final PDF, bookmarks included, was written.
	ConversionDone ConversionStatus = "converted"
	// ConversionPartial means the text-bearing PDF was produced but the
	// bookmark merge failed; the PDF is left in the workspace.
	ConversionPartial ConversionStatus = "partial"
	ConversionFailed  ConversionStatus = "failed"
)
