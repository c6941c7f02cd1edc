// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Bookmark is one flattened outline entry in the form pdftk expects.
type Bookmark struct {
	// Title is the label shown in the PDF viewer's outline pane.
	Title string `json:"title" yaml:"title"`

	// Level is the nesting depth, 0 for top-level entries.
	Level int `json:"level" yaml:"level"`

	// PageNumber is the 1-based destination page. Zero means the outline
	// target did not carry a usable page number.
	PageNumber int `json:"page_number,omitempty" yaml:"page_number,omitempty"`
}

// HasPage reports whether a destination page was captured.
func (b Bookmark) HasPage() bool { return b.PageNumber > 0 }
