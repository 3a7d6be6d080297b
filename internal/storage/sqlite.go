// Package storage provides SQLite-based persistence for staked runs.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var (
	// ErrRunNotFound is returned when an operation names an unknown run.
	ErrRunNotFound = errors.New("storage: run not found")

	// ErrRunFinalized is returned when a finalized run would be changed.
	ErrRunFinalized = errors.New("storage: run already finalized")

	// ErrRunNotPaused is returned when resuming a run that is not paused.
	ErrRunNotPaused = errors.New("storage: run is not paused")
)

// Store manages the SQLite database connection for run persistence.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	// SQLite allows one writer; session goroutines finalize concurrently.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			run_count INTEGER NOT NULL,
			commitment TEXT NOT NULL,
			secret TEXT NOT NULL,
			player_seed TEXT NOT NULL,
			difficulty INTEGER NOT NULL,
			percent_min REAL NOT NULL,
			percent_max REAL NOT NULL,
			curve_mode TEXT NOT NULL,
			rules_fingerprint TEXT NOT NULL,
			initial_ledger TEXT NOT NULL,
			final_ledger TEXT,
			terminal_reason TEXT NOT NULL DEFAULT 'none',
			inputs TEXT NOT NULL DEFAULT '[]',
			events_digest TEXT,
			snapshot TEXT,
			verified INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			finalized_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// parseTime converts a scanned DATETIME column, which the driver may hand
// back as either time.Time or text.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
