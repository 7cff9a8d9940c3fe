package cache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

// Entry is one cached resolution.
type Entry struct {
	Package    string
	Descriptor string
	Ref        resolve.ResolvedReference
	FetchedAt  time.Time
	TTL        time.Duration
}

// ExpiresAt returns the moment the entry stops being served.
func (e *Entry) ExpiresAt() time.Time {
	return e.FetchedAt.Add(e.TTL)
}

// Expired reports whether the entry is past its TTL at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Get returns the cached reference for (pkg, key). An expired entry is
// removed and reported as absent.
func (s *Store) Get(pkg, key string) (resolve.ResolvedReference, bool, error) {
	query := `
		SELECT package, descriptor, channel, commit_ref, version, source, resolved_at, fetched_at, ttl_ms
		FROM resolutions
		WHERE package = ? AND descriptor = ?
	`

	entry, err := scanEntry(s.db.QueryRow(query, pkg, key))
	if err == sql.ErrNoRows {
		return resolve.ResolvedReference{}, false, nil
	}
	if err != nil {
		return resolve.ResolvedReference{}, false, wrapErr(err, "failed to get cache entry for %s (%s)", pkg, key)
	}

	if entry.Expired(s.now()) {
		if _, err := s.db.Exec(`DELETE FROM resolutions WHERE package = ? AND descriptor = ?`, pkg, key); err != nil {
			return resolve.ResolvedReference{}, false, wrapErr(err, "failed to evict cache entry for %s (%s)", pkg, key)
		}
		return resolve.ResolvedReference{}, false, nil
	}

	return entry.Ref, true, nil
}

// Put stores ref under (ref.Package, key), replacing any previous entry.
func (s *Store) Put(ref resolve.ResolvedReference, key string, ttl time.Duration) error {
	query := `
		INSERT OR REPLACE INTO resolutions
		(package, descriptor, channel, commit_ref, version, source, resolved_at, fetched_at, ttl_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		ref.Package,
		key,
		ref.Channel,
		ref.Commit,
		ref.Version,
		ref.Source,
		ref.ResolvedAt.UTC().Format(time.RFC3339Nano),
		s.now().UTC().Format(time.RFC3339Nano),
		ttlMillis(ttl),
	)
	if err != nil {
		return wrapErr(err, "failed to cache resolution for %s (%s)", ref.Package, key)
	}
	return nil
}

// Entries returns all cached entries, including expired ones, ordered by
// package and descriptor.
func (s *Store) Entries() ([]*Entry, error) {
	query := `
		SELECT package, descriptor, channel, commit_ref, version, source, resolved_at, fetched_at, ttl_ms
		FROM resolutions
		ORDER BY package, descriptor
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrapErr(err, "failed to list cache entries")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cache entries: %w", err)
	}

	return entries, nil
}

// Prune deletes expired entries and returns how many were removed.
func (s *Store) Prune() (int, error) {
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}

	now := s.now()
	removed := 0
	for _, e := range entries {
		if !e.Expired(now) {
			continue
		}
		if _, err := s.db.Exec(`DELETE FROM resolutions WHERE package = ? AND descriptor = ?`, e.Package, e.Descriptor); err != nil {
			return removed, wrapErr(err, "failed to prune cache entry for %s (%s)", e.Package, e.Descriptor)
		}
		removed++
	}
	return removed, nil
}

// Clear deletes every entry and returns how many were removed.
func (s *Store) Clear() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM resolutions`)
	if err != nil {
		return 0, wrapErr(err, "failed to clear cache")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// ttlMillis rounds ttl up to whole milliseconds so a positive TTL is never
// stored as zero.
func ttlMillis(ttl time.Duration) int64 {
	return int64((ttl + time.Millisecond - 1) / time.Millisecond)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                     Entry
		resolvedAt, fetchedAt string
		ttlMS                 int64
	)

	err := row.Scan(
		&e.Package,
		&e.Descriptor,
		&e.Ref.Channel,
		&e.Ref.Commit,
		&e.Ref.Version,
		&e.Ref.Source,
		&resolvedAt,
		&fetchedAt,
		&ttlMS,
	)
	if err != nil {
		return nil, err
	}
	e.Ref.Package = e.Package
	e.TTL = time.Duration(ttlMS) * time.Millisecond

	if e.Ref.ResolvedAt, err = time.Parse(time.RFC3339Nano, resolvedAt); err != nil {
		return nil, fmt.Errorf("failed to parse resolved_at for %s: %w", e.Package, err)
	}
	if e.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt); err != nil {
		return nil, fmt.Errorf("failed to parse fetched_at for %s: %w", e.Package, err)
	}

	return &e, nil
}

// wrapErr maps a missing table to ErrNotInitialized.
func wrapErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%s: %w", msg, ErrNotInitialized)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
