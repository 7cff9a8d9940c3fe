package rollback

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/nixbrew/internal/registry"
	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

func ref(channel, version string) resolve.ResolvedReference {
	return resolve.ResolvedReference{
		Package:    "ripgrep",
		Channel:    channel,
		Version:    version,
		Source:     "github:NixOS/nixpkgs/nixos-" + channel,
		ResolvedAt: time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC),
	}
}

// seeded returns a manager over history [A(v1), B(v2), C(v3)].
func seeded(t *testing.T) (*Manager, *registry.Store, []resolve.ResolvedReference) {
	t.Helper()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	store := registry.New(filepath.Join(t.TempDir(), "registry.json"), registry.WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))

	refs := []resolve.ResolvedReference{
		ref("23.05", "1.0.0"),
		ref("23.11", "2.0.0"),
		ref("unstable", "3.0.0"),
	}
	actions := []registry.Action{registry.ActionInstall, registry.ActionUpgrade, registry.ActionUpgrade}
	for i, r := range refs {
		_, err := store.Upsert("ripgrep", r, actions[i])
		require.NoError(t, err)
	}
	return New(store), store, refs
}

func TestHistory_UnknownPackageIsEmpty(t *testing.T) {
	m, _, _ := seeded(t)

	entries, err := m.History("fd")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}

func TestHistory_OldestFirst(t *testing.T) {
	m, _, refs := seeded(t)

	entries, err := m.History("ripgrep")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := range refs {
		assert.True(t, entries[i].Ref.Same(refs[i]), "entry %d", i)
	}
}

func TestRollback_ToFirstVersion(t *testing.T) {
	m, store, refs := seeded(t)

	var reinstalled []resolve.ResolvedReference
	r := ReinstallFunc(func(_ context.Context, ref resolve.ResolvedReference) error {
		reinstalled = append(reinstalled, ref)
		return nil
	})

	got, err := m.Rollback(context.Background(), "ripgrep", "1.0.0", r)
	require.NoError(t, err)
	assert.True(t, got.Same(refs[0]))
	require.Len(t, reinstalled, 1)
	assert.True(t, reinstalled[0].Same(refs[0]))

	rec, err := store.Get("ripgrep")
	require.NoError(t, err)
	require.Equal(t, 4, rec.History.Len())
	last, _ := rec.History.Last()
	assert.Equal(t, registry.ActionRollback, last.Action)
	assert.True(t, last.Ref.Same(refs[0]))
	assert.True(t, rec.Current.Same(refs[0]))

	// Earlier entries are untouched.
	entries := rec.History.Entries()
	for i := range refs {
		assert.True(t, entries[i].Ref.Same(refs[i]), "entry %d", i)
	}
}

func TestRollback_NeverInstalled(t *testing.T) {
	m, store, _ := seeded(t)

	called := false
	r := ReinstallFunc(func(context.Context, resolve.ResolvedReference) error {
		called = true
		return nil
	})

	_, err := m.Rollback(context.Background(), "ripgrep", "9.0.0", r)
	require.ErrorIs(t, err, ErrVersionNeverInstalled)
	assert.Contains(t, err.Error(), "ripgrep")
	assert.Contains(t, err.Error(), "9.0.0")
	assert.False(t, called, "reinstall must not run for an unknown version")

	rec, err := store.Get("ripgrep")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.History.Len())
}

func TestRollback_ReinstallFailureLeavesRegistry(t *testing.T) {
	m, store, refs := seeded(t)

	boom := errors.New("nix profile add failed")
	_, err := m.Rollback(context.Background(), "ripgrep", "2.0.0", ReinstallFunc(func(context.Context, resolve.ResolvedReference) error {
		return boom
	}))
	require.ErrorIs(t, err, boom)

	rec, err := store.Get("ripgrep")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.History.Len())
	assert.True(t, rec.Current.Same(refs[2]))
}

func TestRollback_CancelledContext(t *testing.T) {
	m, store, _ := seeded(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Rollback(ctx, "ripgrep", "1.0.0", ReinstallFunc(func(context.Context, resolve.ResolvedReference) error {
		t.Fatal("reinstall must not run after cancellation")
		return nil
	}))
	require.ErrorIs(t, err, context.Canceled)

	rec, err := store.Get("ripgrep")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.History.Len())
}

func TestFind_NewestMatchWins(t *testing.T) {
	m, store, _ := seeded(t)

	// Reinstall 1.0.0 from a different channel; it is now the newest match.
	other := ref("23.11", "1.0.0")
	_, err := store.Upsert("ripgrep", other, registry.ActionInstall)
	require.NoError(t, err)

	got, err := m.Find("ripgrep", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "23.11", got.Channel)
}

func TestFind_SemanticEquality(t *testing.T) {
	m, _, refs := seeded(t)

	got, err := m.Find("ripgrep", "v2.0.0")
	require.NoError(t, err)
	assert.True(t, got.Same(refs[1]))
}

func TestFind_SkipsUnknownVersions(t *testing.T) {
	m, store, _ := seeded(t)

	commit := resolve.ResolvedReference{
		Package: "ripgrep",
		Commit:  "abc1234",
		Source:  "github:NixOS/nixpkgs/abc1234",
	}
	_, err := store.Upsert("ripgrep", commit, registry.ActionInstall)
	require.NoError(t, err)

	_, err = m.Find("ripgrep", "")
	require.ErrorIs(t, err, ErrVersionNeverInstalled)
}
