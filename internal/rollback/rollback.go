// Package rollback answers history questions from the local registry and
// restores a package to a version it previously had.
package rollback

import (
	"context"
	"errors"
	"fmt"

	"github.com/blackwell-systems/nixbrew/internal/descriptor"
	"github.com/blackwell-systems/nixbrew/internal/registry"
	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

// ErrVersionNeverInstalled means no history entry of the package carries the
// requested version.
var ErrVersionNeverInstalled = errors.New("version was never installed")

// Reinstaller puts a previously resolved reference back into the profile.
type Reinstaller interface {
	Reinstall(ctx context.Context, ref resolve.ResolvedReference) error
}

// ReinstallFunc adapts a function to Reinstaller.
type ReinstallFunc func(ctx context.Context, ref resolve.ResolvedReference) error

func (f ReinstallFunc) Reinstall(ctx context.Context, ref resolve.ResolvedReference) error {
	return f(ctx, ref)
}

// Registry is the subset of the registry store the manager needs.
type Registry interface {
	Get(pkg string) (*registry.Record, error)
	Upsert(pkg string, ref resolve.ResolvedReference, action registry.Action) (*registry.Record, error)
}

// Manager reads and extends package histories.
type Manager struct {
	registry Registry
}

// New returns a manager backed by reg.
func New(reg Registry) *Manager {
	return &Manager{registry: reg}
}

// History returns pkg's entries oldest first. An unknown package has an
// empty history.
func (m *Manager) History(pkg string) ([]registry.HistoryEntry, error) {
	rec, err := m.registry.Get(pkg)
	if errors.Is(err, registry.ErrNotInstalled) {
		return []registry.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.History.Entries(), nil
}

// Find returns the reference of the newest history entry whose version
// matches target. It never consults the network.
func (m *Manager) Find(pkg, target string) (resolve.ResolvedReference, error) {
	entries, err := m.History(pkg)
	if err != nil {
		return resolve.ResolvedReference{}, err
	}

	for i := len(entries) - 1; i >= 0; i-- {
		ref := entries[i].Ref
		if ref.VersionKnown() && descriptor.VersionsEqual(ref.Version, target) {
			return ref, nil
		}
	}
	return resolve.ResolvedReference{}, fmt.Errorf("%s %s: %w", pkg, target, ErrVersionNeverInstalled)
}

// Rollback reinstalls the newest reference of pkg at target and records it as
// a rollback. Nothing is recorded when the reinstall fails.
func (m *Manager) Rollback(ctx context.Context, pkg, target string, r Reinstaller) (resolve.ResolvedReference, error) {
	ref, err := m.Find(pkg, target)
	if err != nil {
		return resolve.ResolvedReference{}, err
	}

	if err := ctx.Err(); err != nil {
		return resolve.ResolvedReference{}, err
	}
	if err := r.Reinstall(ctx, ref); err != nil {
		return resolve.ResolvedReference{}, fmt.Errorf("failed to reinstall %s %s: %w", pkg, target, err)
	}

	if _, err := m.registry.Upsert(pkg, ref, registry.ActionRollback); err != nil {
		return resolve.ResolvedReference{}, err
	}
	return ref, nil
}
