// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workspace manages the scratch directory a conversion runs in:
// the per-page artifacts, the outline and metadata dumps, and the state
// record that lets an interrupted conversion resume.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/dpsprep/pkg/types"
)

const (
	stateFile    = "state.yaml"
	pagesDir     = "pages"
	outlineFile  = "outline.sexp"
	bundledFile  = "bundled.pdf"
	metadataDump = "metadata.out"
	metadataEdit = "metadata.in"
)

// State is the persisted progress of the conversion in process.
type State struct {
	// Source is the absolute path of the DJVU document being converted.
	Source string `yaml:"source"`

	// Stage is the last completed stage.
	Stage types.Stage `yaml:"stage"`

	// Pages is the page count reported by djvused, once known.
	Pages int `yaml:"pages,omitempty"`

	StartedAt time.Time `yaml:"started_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// ConflictError is returned when the workspace already tracks a
// different source document.
type ConflictError struct {
	InProcess string
	Requested string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("attempting to process %s before %s is completed", e.Requested, e.InProcess)
}

// Workspace is a directory holding at most one in-process conversion.
type Workspace struct {
	dir string
}

// Open returns the workspace rooted at dir, creating it if needed.
func Open(dir string) (*Workspace, error) {
	if dir == "" {
		return nil, errors.New("workspace directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", dir, err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string              { return w.dir }
func (w *Workspace) PagesDir() string         { return filepath.Join(w.dir, pagesDir) }
func (w *Workspace) OutlinePath() string      { return filepath.Join(w.dir, outlineFile) }
func (w *Workspace) BundledPath() string      { return filepath.Join(w.dir, bundledFile) }
func (w *Workspace) MetadataDumpPath() string { return filepath.Join(w.dir, metadataDump) }
func (w *Workspace) MetadataEditPath() string { return filepath.Join(w.dir, metadataEdit) }
func (w *Workspace) statePath() string        { return filepath.Join(w.dir, stateFile) }

// Load returns the current state, or nil when no conversion is in
// process.
func (w *Workspace) Load() (*State, error) {
	data, err := os.ReadFile(w.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading workspace state: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing workspace state: %w", err)
	}
	stage, err := types.ParseStage(string(st.Stage))
	if err != nil {
		return nil, fmt.Errorf("parsing workspace state: %w", err)
	}
	st.Stage = stage
	return &st, nil
}

// Claim marks source as the document in process. If the workspace
// already tracks source, its saved state is returned with resumed set.
// A different source yields a *ConflictError and changes nothing.
func (w *Workspace) Claim(source string) (st *State, resumed bool, err error) {
	st, err = w.Load()
	if err != nil {
		return nil, false, err
	}
	if st != nil {
		if st.Source != source {
			return nil, false, &ConflictError{InProcess: st.Source, Requested: source}
		}
		return st, true, nil
	}

	now := time.Now().UTC()
	st = &State{
		Source:    source,
		Stage:     types.StageNotStarted,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := w.Save(st); err != nil {
		return nil, false, err
	}
	return st, false, nil
}

// Advance records stage as completed.
func (w *Workspace) Advance(st *State, stage types.Stage) error {
	st.Stage = stage
	return w.Save(st)
}

// Save writes st to the state record, replacing it atomically.
func (w *Workspace) Save(st *State) error {
	st.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding workspace state: %w", err)
	}

	tmp := w.statePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing workspace state: %w", err)
	}
	if err := os.Rename(tmp, w.statePath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing workspace state: %w", err)
	}
	return nil
}

// Purge removes every artifact and the state record, leaving an empty
// workspace directory.
func (w *Workspace) Purge() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading workspace: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(w.dir, e.Name())); err != nil {
			return fmt.Errorf("clearing workspace: %w", err)
		}
	}
	return nil
}

// Empty reports whether the file at path is missing or holds nothing but
// whitespace.
func Empty(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	for _, b := range data {
		if b != ' ' && b != '\t' && b != '\n' && b != '\r' {
			return false, nil
		}
	}
	return true, nil
}
