// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records the outcome of every conversion in a SQLite
// database so earlier runs can be listed and partial conversions found.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/dpsprep/pkg/types"
)

const defaultLimit = 20

// Entry is one recorded conversion attempt.
type Entry struct {
	ID          int64                  `json:"id"`
	Source      string                 `json:"source"`
	Destination string                 `json:"destination"`
	Stage       types.Stage            `json:"stage"`
	Status      types.ConversionStatus `json:"status"`
	Bookmarks   int                    `json:"bookmarks"`
	Error       string                 `json:"error,omitempty"`
	RecordedAt  time.Time              `json:"recorded_at"`
}

// Store manages the history SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			destination TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			bookmarks INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			recorded_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_source ON conversions(source)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record appends e. A zero RecordedAt is set to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions (source, destination, stage, status, bookmarks, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Source, e.Destination, string(e.Stage), string(e.Status), e.Bookmarks, e.Error,
		e.RecordedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording conversion of %s: %w", e.Source, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A limit of zero or
// less uses the default of 20.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, destination, stage, status, bookmarks, COALESCE(error, ''), recorded_at
		 FROM conversions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Last returns the most recent entry for source, or nil if there is none.
func (s *Store) Last(ctx context.Context, source string) (*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, destination, stage, status, bookmarks, COALESCE(error, ''), recorded_at
		 FROM conversions WHERE source = ? ORDER BY id DESC LIMIT 1`, source)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e                    Entry
			stage, status, stamp string
		)
		if err := rows.Scan(&e.ID, &e.Source, &e.Destination, &stage, &status, &e.Bookmarks, &e.Error, &stamp); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.Stage = types.Stage(stage)
		e.Status = types.ConversionStatus(status)
		t, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return nil, fmt.Errorf("parsing history timestamp %q: %w", stamp, err)
		}
		e.RecordedAt = t
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return out, nil
}
