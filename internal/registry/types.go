package registry

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

// Action tags why a history entry was recorded.
type Action string

const (
	ActionInstall  Action = "install"
	ActionUpgrade  Action = "upgrade"
	ActionPin      Action = "pin"
	ActionRollback Action = "rollback"
)

// HistoryEntry is one recorded state of a package. Entries are never modified
// once appended.
type HistoryEntry struct {
	Ref       resolve.ResolvedReference `json:"ref"`
	Action    Action                    `json:"action"`
	Timestamp time.Time                 `json:"timestamp"`
}

// History is an append-only sequence of entries, oldest first. The zero value
// is an empty history.
type History struct {
	entries []HistoryEntry
}

// NewHistory returns a history holding a copy of entries.
func NewHistory(entries ...HistoryEntry) History {
	return History{entries: slices.Clone(entries)}
}

// Append returns a new History with e added at the end. The receiver is not
// modified.
func (h History) Append(e HistoryEntry) History {
	out := make([]HistoryEntry, len(h.entries), len(h.entries)+1)
	copy(out, h.entries)
	return History{entries: append(out, e)}
}

// Entries returns a copy of the entries, oldest first.
func (h History) Entries() []HistoryEntry {
	return slices.Clone(h.entries)
}

// Len returns the number of entries.
func (h History) Len() int {
	return len(h.entries)
}

// Last returns the newest entry.
func (h History) Last() (HistoryEntry, bool) {
	if len(h.entries) == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// MarshalJSON encodes the history as a JSON array.
func (h History) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.entries)
}

// UnmarshalJSON decodes a JSON array (or null) of entries.
func (h *History) UnmarshalJSON(data []byte) error {
	var entries []HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	h.entries = entries
	return nil
}

// Record is the registry's state for one installed package.
type Record struct {
	Name    string                    `json:"name"`
	Current resolve.ResolvedReference `json:"current"`
	Pinned  bool                      `json:"pinned,omitempty"`
	History History                   `json:"history"`
}

// document is the on-disk layout of the registry file.
type document struct {
	Version  int                `json:"version"`
	Packages map[string]*Record `json:"packages"`
}

const documentVersion = 1
