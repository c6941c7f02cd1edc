// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const sourceExt = ".djvu"

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int

	// Remaining counts sources not attempted because the batch halted.
	Remaining int
}

// Total returns the number of sources found.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed + r.Remaining
}

// HasFailures reports whether any source failed or was left unattempted.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0 || r.Remaining > 0
}

// DestinationFor returns the PDF path that mirrors a DJVU source: same
// directory, same base name.
func DestinationFor(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + ".pdf"
}

// FindSources walks dir and returns every .djvu file below it, sorted.
func FindSources(dir string) ([]string, error) {
	var sources []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), sourceExt) {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	sort.Strings(sources)
	return sources, nil
}

// ConvertBatch converts each source to the PDF beside it. Sources whose
// PDF already exists are skipped. A failure leaves that source claimed in
// the workspace, so the batch halts there; rerunning resumes it first,
// ahead of the rest. The returned error is the one that halted the batch.
func (o *Orchestrator) ConvertBatch(ctx context.Context, sources []string) (BatchResult, error) {
	var result BatchResult
	var haltErr error

	sources, err := o.claimedFirst(sources)
	if err != nil {
		return result, err
	}

	for i, src := range sources {
		dest := DestinationFor(src)
		if _, err := os.Stat(dest); err == nil {
			fmt.Fprintf(o.w, "skipped: %s (already exists)\n", filepath.Base(dest))
			result.Skipped++
			continue
		}

		if _, err := o.Convert(ctx, src, dest); err != nil {
			fmt.Fprintf(o.w, "failed:  %s (%v)\n", filepath.Base(src), err)
			result.Failed++
			result.Remaining = len(sources) - i - 1
			haltErr = err
			break
		}
		result.Converted++

		if err := ctx.Err(); err != nil {
			result.Remaining = len(sources) - i - 1
			haltErr = err
			break
		}
	}

	fmt.Fprintf(o.w, "\nBatch summary: %d converted, %d skipped, %d failed, %d remaining (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Remaining, result.Total())
	if haltErr != nil && !errors.Is(haltErr, context.Canceled) {
		fmt.Fprintln(o.w, "Batch halted; rerun to resume from the failed document.")
	}
	return result, haltErr
}

// claimedFirst returns sources with the one claimed in the workspace, if
// present, moved to the front.
func (o *Orchestrator) claimedFirst(sources []string) ([]string, error) {
	st, err := o.ws.Load()
	if err != nil || st == nil {
		return sources, err
	}
	for i, src := range sources {
		abs, err := filepath.Abs(src)
		if err != nil || abs != st.Source {
			continue
		}
		ordered := make([]string, 0, len(sources))
		ordered = append(ordered, src)
		ordered = append(ordered, sources[:i]...)
		return append(ordered, sources[i+1:]...), nil
	}
	return sources, nil
}

// ConvertTree converts every .djvu file found below dir.
func (o *Orchestrator) ConvertTree(ctx context.Context, dir string) (BatchResult, error) {
	sources, err := FindSources(dir)
	if err != nil {
		return BatchResult{}, err
	}
	return o.ConvertBatch(ctx, sources)
}
