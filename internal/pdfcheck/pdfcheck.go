// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdfcheck opens a finished PDF and reports what a reader will
// see: its page count and the bookmarks in its outline.
package pdfcheck

import (
	"fmt"

	pdflib "github.com/ledongthuc/pdf"
)

// Report summarizes a PDF.
type Report struct {
	Pages int

	// TopLevel is the number of first-level outline entries.
	TopLevel int

	// Bookmarks is the number of outline entries at every depth.
	Bookmarks int

	// Titles lists the outline titles in pre-order.
	Titles []string
}

// Inspector reads a PDF and summarizes it.
type Inspector interface {
	Inspect(path string) (Report, error)
}

// Reader is the Inspector backed by github.com/ledongthuc/pdf.
type Reader struct{}

// Inspect opens path and walks its page tree and outline. The parser
// panics on some malformed files; that is reported as an error.
func (Reader) Inspect(path string) (rep Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading %s: %v", path, r)
		}
	}()

	f, r, err := pdflib.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	rep.Pages = r.NumPage()
	root := r.Outline()
	rep.TopLevel = len(root.Child)
	walk(root.Child, &rep)
	return rep, nil
}

func walk(entries []pdflib.Outline, rep *Report) {
	for _, e := range entries {
		rep.Bookmarks++
		rep.Titles = append(rep.Titles, e.Title)
		walk(e.Child, rep)
	}
}
