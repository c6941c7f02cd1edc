// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package outline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/dpsprep/pkg/types"
)

// ErrNoSplicePoint means the metadata dump has no NumberOfPages field to
// insert bookmarks after.
var ErrNoSplicePoint = errors.New("metadata has no NumberOfPages field")

var numberOfPages = regexp.MustCompile(`NumberOfPages: [0-9]+`)

// lineBreaks folds title line breaks into spaces; pdftk reads one field
// per line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Serialize renders bookmarks as pdftk metadata stanzas, one field per
// line, with levels written as stored.
func Serialize(bookmarks []types.Bookmark) string {
	return SerializeOffset(bookmarks, 0)
}

// SerializeOffset is Serialize with offset added to every level. Line
// breaks inside a title become spaces so a title always stays one field.
func SerializeOffset(bookmarks []types.Bookmark, offset int) string {
	var b strings.Builder
	for _, bm := range bookmarks {
		b.WriteString("BookmarkBegin\n")
		fmt.Fprintf(&b, "BookmarkTitle: %s\n", lineBreaks.Replace(bm.Title))
		fmt.Fprintf(&b, "BookmarkLevel: %d\n", bm.Level+offset)
		if bm.HasPage() {
			fmt.Fprintf(&b, "BookmarkPageNumber: %d\n", bm.PageNumber)
		}
	}
	return b.String()
}

// Splice inserts a serialized bookmark block on its own lines right after
// the first NumberOfPages field of metadata. Everything up to the end of
// that field is left untouched. An empty block returns metadata as is.
func Splice(metadata, block string) (string, error) {
	loc := numberOfPages.FindStringIndex(metadata)
	if loc == nil {
		return "", ErrNoSplicePoint
	}
	if block == "" {
		return metadata, nil
	}
	end := loc[1]
	return metadata[:end] + "\n" + strings.TrimSuffix(block, "\n") + metadata[end:], nil
}
