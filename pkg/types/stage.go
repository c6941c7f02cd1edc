// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// Stage identifies how far the conversion of a source document has
// progressed. Stages advance strictly forward in the order of stageOrder.
type Stage string

const (
	StageNotStarted     Stage = "not-started"
	StageRasterized     Stage = "rasterized"
	StageTextExtracted  Stage = "text-extracted"
	StageBundled        Stage = "bundled"
	StageMetadataMerged Stage = "metadata-merged"
	StageDone           Stage = "done"
)

var stageOrder = []Stage{
	StageNotStarted,
	StageRasterized,
	StageTextExtracted,
	StageBundled,
	StageMetadataMerged,
	StageDone,
}

// Index returns the position of s in pipeline order, or -1 for an
// unknown stage.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Reached reports whether s is at or past target.
func (s Stage) Reached(target Stage) bool {
	return s.Index() >= target.Index() && target.Valid()
}

// ParseStage converts a string into a Stage. The empty string maps to
// StageNotStarted.
func ParseStage(v string) (Stage, error) {
	if v == "" {
		return StageNotStarted, nil
	}
	s := Stage(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stage %q", v)
	}
	return s, nil
}
