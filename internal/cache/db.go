// Package cache persists resolver results across nixbrew invocations.
//
// Entries live in a small SQLite database keyed by (package, descriptor).
// Expiry is lazy: an entry past its TTL is deleted when it is looked up.
// The database holds nothing that cannot be recomputed, so it may be removed
// at any time.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotInitialized is returned when the cache schema has not been created.
var ErrNotInitialized = errors.New("resolution cache is not initialized; run 'nixbrew cache clear' to recreate it")

// Store provides SQLite operations for the resolution cache.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Store with the specified database path.
// Use ":memory:" for in-memory databases (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// WAL lets a second nixbrew process read while another commits
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Open creates a Store and ensures its schema exists.
func Open(dbPath string) (*Store, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.CreateSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateSchema creates all tables and indexes. A database written by an
// older schema version is emptied first.
func (s *Store) CreateSchema() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read cache schema version: %w", err)
	}
	if version < schemaVersion {
		if _, err := s.db.Exec("DROP TABLE IF EXISTS resolutions"); err != nil {
			return fmt.Errorf("failed to drop outdated cache: %w", err)
		}
	}

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create cache schema: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to record cache schema version: %w", err)
	}
	return nil
}
