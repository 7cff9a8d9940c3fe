// Package registry persists which reference each package is installed at,
// together with the full history of every state it has been in.
//
// The registry is a single JSON document. Every mutation reads the file,
// applies the change and replaces the file atomically.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/blackwell-systems/nixbrew/internal/atomicfile"
	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

var (
	// ErrRegistryCorrupt means the registry file exists but cannot be used.
	// The file is left in place.
	ErrRegistryCorrupt = errors.New("registry file is corrupt")

	// ErrNotInstalled means the package has no registry record.
	ErrNotInstalled = errors.New("package is not installed")
)

// Store reads and writes the registry document at a fixed path.
type Store struct {
	path string
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a store for the registry file at path. The file is not touched
// until the first read or write.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the registry file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns the record for pkg.
func (s *Store) Get(pkg string) (*Record, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Packages[pkg]
	if !ok {
		return nil, fmt.Errorf("%s: %w", pkg, ErrNotInstalled)
	}
	return rec, nil
}

// All returns every record sorted by package name.
func (s *Store) All() ([]*Record, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(doc.Packages))
	for _, rec := range doc.Packages {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return records, nil
}

// Upsert sets pkg's current reference to ref and appends a history entry
// tagged with action. An entry is appended even when ref equals the current
// reference.
func (s *Store) Upsert(pkg string, ref resolve.ResolvedReference, action Action) (*Record, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	rec, ok := doc.Packages[pkg]
	if !ok {
		rec = &Record{Name: pkg}
		doc.Packages[pkg] = rec
	}

	rec.Current = ref
	rec.History = rec.History.Append(HistoryEntry{
		Ref:       ref,
		Action:    action,
		Timestamp: s.timestamp(rec.History),
	})
	if action == ActionPin {
		rec.Pinned = true
	}

	if err := s.save(doc); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetPinned changes only the pinned flag of an installed package.
func (s *Store) SetPinned(pkg string, pinned bool) (*Record, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	rec, ok := doc.Packages[pkg]
	if !ok {
		return nil, fmt.Errorf("%s: %w", pkg, ErrNotInstalled)
	}
	if rec.Pinned == pinned {
		return rec, nil
	}

	rec.Pinned = pinned
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return rec, nil
}

// Remove deletes pkg's record, history included.
func (s *Store) Remove(pkg string) error {
	doc, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := doc.Packages[pkg]; !ok {
		return fmt.Errorf("%s: %w", pkg, ErrNotInstalled)
	}
	delete(doc.Packages, pkg)
	return s.save(doc)
}

// timestamp returns the current time, never earlier than the newest entry
// already in h.
func (s *Store) timestamp(h History) time.Time {
	ts := s.now().UTC()
	if last, ok := h.Last(); ok && ts.Before(last.Timestamp) {
		ts = last.Timestamp
	}
	return ts
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &document{Version: documentVersion, Packages: map[string]*Record{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry %s: %w", s.path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, s.corrupt(errors.New("file is empty"))
	}
	if err := validateDocument(data); err != nil {
		return nil, s.corrupt(err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, s.corrupt(err)
	}
	if doc.Packages == nil {
		doc.Packages = map[string]*Record{}
	}
	for name, rec := range doc.Packages {
		if rec.Name == "" {
			rec.Name = name
		}
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	if doc.Version < documentVersion {
		doc.Version = documentVersion
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	data = append(data, '\n')

	if err := atomicfile.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) corrupt(cause error) error {
	return fmt.Errorf("%w: %s: %v (inspect or move the file aside to reset)", ErrRegistryCorrupt, s.path, cause)
}
