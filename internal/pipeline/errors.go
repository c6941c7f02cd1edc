// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"errors"
	"fmt"

	"github.com/pdiddy/dpsprep/internal/tools"
	"github.com/pdiddy/dpsprep/internal/workspace"
	"github.com/pdiddy/dpsprep/pkg/types"
)

// Exit codes reported by the CLI.
const (
	ExitFailure  = 1
	ExitConflict = 3
)

// stageExitCodes is used when a failing stage has no tool exit status to
// propagate.
var stageExitCodes = map[types.Stage]int{
	types.StageRasterized:     10,
	types.StageTextExtracted:  11,
	types.StageBundled:        12,
	types.StageMetadataMerged: 13,
}

// ErrQualityRange is returned for a quality outside 50-150.
var ErrQualityRange = fmt.Errorf("quality must be between %d and %d", types.MinQuality, types.MaxQuality)

// StageError reports which stage failed. Stage is the stage that was
// being produced, not the last one completed.
type StageError struct {
	Stage types.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PartialError is returned when the text-bearing PDF was bundled but the
// bookmark merge failed. Salvage is the path of that PDF; it stays in the
// workspace until the conversion is resumed or reset.
type PartialError struct {
	Salvage string
	Err     error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("bookmarks not merged, text-bearing PDF kept at %s: %v", e.Salvage, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// ValidateQuality checks q against the range ddjvu accepts.
func ValidateQuality(q int) error {
	if q < types.MinQuality || q > types.MaxQuality {
		return fmt.Errorf("%w, got %d", ErrQualityRange, q)
	}
	return nil
}

// ExitCode maps an error from Convert to a process exit status. A tool
// that exited nonzero passes its own status through unless that status
// collides with the conflict or a stage code; otherwise the failing stage
// selects the code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var cErr *workspace.ConflictError
	if errors.As(err, &cErr) {
		return ExitConflict
	}

	var tErr *tools.ToolError
	if errors.As(err, &tErr) && tErr.Status > 0 && !reservedExitCode(tErr.Status) {
		return tErr.Status
	}

	var sErr *StageError
	if errors.As(err, &sErr) {
		if code, ok := stageExitCodes[sErr.Stage]; ok {
			return code
		}
	}
	return ExitFailure
}

func reservedExitCode(code int) bool {
	if code == ExitConflict {
		return true
	}
	for _, c := range stageExitCodes {
		if c == code {
			return true
		}
	}
	return false
}
