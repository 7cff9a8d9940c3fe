package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/nixbrew/internal/descriptor"
)

var errNetwork = errors.New("unable to download: connection reset")

// fakeLookup serves package versions per source and can fail transiently.
type fakeLookup struct {
	mu        sync.Mutex
	versions  map[string]map[string]string // source -> package -> version
	failFirst map[string]int               // source -> remaining transient failures
	revisions map[string]string            // branch source -> commit
	calls     int
	perSource map[string]int
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		versions:  make(map[string]map[string]string),
		failFirst: make(map[string]int),
		perSource: make(map[string]int),
	}
}

func (f *fakeLookup) offer(branch, pkg, version string) {
	source := DefaultUpstream + "/" + branch
	if f.versions[source] == nil {
		f.versions[source] = make(map[string]string)
	}
	f.versions[source][pkg] = version
}

func (f *fakeLookup) PackageVersion(ctx context.Context, source, pkg string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.perSource[source]++

	if n := f.failFirst[source]; n > 0 {
		f.failFirst[source] = n - 1
		return "", errNetwork
	}
	pkgs, ok := f.versions[source]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSourceUnknown, source)
	}
	v, ok := pkgs[pkg]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPackageUnknown, pkg)
	}
	return v, nil
}

// pinningLookup adds revision locking on top of fakeLookup.
type pinningLookup struct {
	*fakeLookup
}

func (p pinningLookup) LockedRevision(ctx context.Context, source string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rev, ok := p.revisions[source]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSourceUnknown, source)
	}
	return rev, nil
}

// memCache is an in-memory Cache honouring TTLs against a supplied clock.
type memCache struct {
	now     func() time.Time
	entries map[string]memEntry
	puts    int
}

type memEntry struct {
	ref     ResolvedReference
	expires time.Time
}

func newMemCache(now func() time.Time) *memCache {
	return &memCache{now: now, entries: make(map[string]memEntry)}
}

func (c *memCache) Get(pkg, key string) (ResolvedReference, bool, error) {
	e, ok := c.entries[pkg+"\x00"+key]
	if !ok || !c.now().Before(e.expires) {
		return ResolvedReference{}, false, nil
	}
	return e.ref, true, nil
}

func (c *memCache) Put(ref ResolvedReference, key string, ttl time.Duration) error {
	c.puts++
	c.entries[ref.Package+"\x00"+key] = memEntry{ref: ref, expires: c.now().Add(ttl)}
	return nil
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newClock() *clock {
	return &clock{t: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
}

func testResolver(l Lookup, c *clock, opts ...Option) *Resolver {
	base := []Option{
		WithClock(c.Now),
		WithChannels([]Channel{
			{Label: "23.11", Branch: "nixos-23.11"},
			{Label: "unstable", Branch: "nixos-unstable"},
		}),
		WithRetry(RetryPolicy{Retries: 1, Wait: time.Millisecond}),
		WithTimeout(time.Second),
	}
	return New(l, append(base, opts...)...)
}

func TestResolve_SemanticPicksOfferingChannel(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-23.11", "ripgrep", "14.0.3")
	l.offer("nixos-unstable", "ripgrep", "14.1.0")
	r := testResolver(l, newClock())

	ref, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("14.1.0"))
	require.NoError(t, err)
	assert.Equal(t, "unstable", ref.Channel)
	assert.Equal(t, "14.1.0", ref.Version)
	assert.Equal(t, "github:NixOS/nixpkgs/nixos-unstable", ref.Source)
	assert.Equal(t, "github:NixOS/nixpkgs/nixos-unstable#ripgrep", ref.Installable())
}

func TestResolve_DateVersion(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-23.11", "yt-dlp", "2023.11.16")
	l.offer("nixos-unstable", "yt-dlp", "2024.03.10")
	r := testResolver(l, newClock())

	ref, err := r.Resolve(context.Background(), "yt-dlp", descriptor.Parse("2024.03.10"))
	require.NoError(t, err)
	assert.Equal(t, "unstable", ref.Channel)
	assert.Equal(t, "2024.03.10", ref.Version)

	_, err = r.Resolve(context.Background(), "yt-dlp", descriptor.Parse("2024.03.11"))
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestResolve_SemanticDeterministic(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-23.11", "ripgrep", "14.0.3")
	l.offer("nixos-unstable", "ripgrep", "14.1.0")
	r := testResolver(l, newClock())

	first, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("14.0.3"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("14.0.3"))
		require.NoError(t, err)
		assert.True(t, first.Same(again), "resolution %d differs: %+v vs %+v", i, first, again)
	}
	assert.Equal(t, "23.11", first.Channel)
}

func TestResolve_SemanticTieBreak(t *testing.T) {
	tests := []struct {
		name   string
		policy TieBreak
		want   string
	}{
		{"newest wins by default", TieBreakNewest, "unstable"},
		{"oldest", TieBreakOldest, "23.11"},
		{"listed order", TieBreakListed, "23.11"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newFakeLookup()
			l.offer("nixos-23.11", "jq", "1.7.1")
			l.offer("nixos-unstable", "jq", "1.7.1")
			r := testResolver(l, newClock(), WithTieBreak(tt.policy))

			ref, err := r.Resolve(context.Background(), "jq", descriptor.Parse("1.7.1"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref.Channel)
		})
	}
}

func TestResolve_SemanticVersionNotFound(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-23.11", "ripgrep", "14.0.3")
	l.offer("nixos-unstable", "ripgrep", "14.1.0")
	r := testResolver(l, newClock())

	_, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("9.9.9"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "ripgrep", rerr.Package)
	assert.Equal(t, "9.9.9", rerr.Descriptor)
	assert.Contains(t, err.Error(), "14.0.3")
}

func TestResolve_SemanticSkipsChannelsWithoutPackage(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-23.11", "helix", "23.10")
	l.offer("nixos-unstable", "other", "1.0.0")
	r := testResolver(l, newClock())

	_, err := r.Resolve(context.Background(), "helix", descriptor.Parse("24.3.0"))
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestResolve_CacheIdempotence(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-unstable", "ripgrep", "14.1.0")
	c := newClock()
	cache := newMemCache(c.Now)
	r := testResolver(l, c, WithCache(cache), WithTTL(time.Hour))

	first, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse(""))
	require.NoError(t, err)
	callsAfterFirst := l.calls

	c.t = c.t.Add(30 * time.Minute)
	second, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse(""))
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, l.calls, "second resolve must not query the remote")
	assert.True(t, first.Same(second))
}

func TestResolve_CacheExpiryTriggersLookup(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-unstable", "ripgrep", "14.1.0")
	c := newClock()
	r := testResolver(l, c, WithCache(newMemCache(c.Now)), WithTTL(time.Hour))

	_, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("unstable"))
	require.NoError(t, err)
	before := l.calls

	c.t = c.t.Add(2 * time.Hour)
	_, err = r.Resolve(context.Background(), "ripgrep", descriptor.Parse("unstable"))
	require.NoError(t, err)
	assert.Greater(t, l.calls, before)
}

func TestResolve_CacheKeysDoNotCollide(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-unstable", "ripgrep", "14.1.0")
	l.offer("nixos-23.11", "ripgrep", "14.0.3")
	c := newClock()
	cache := newMemCache(c.Now)
	r := testResolver(l, c, WithCache(cache))

	_, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse(""))
	require.NoError(t, err)
	ref, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("23.11"))
	require.NoError(t, err)
	assert.Equal(t, "23.11", ref.Channel)
	assert.Equal(t, 2, cache.puts)
}

func TestResolve_ChannelNotFound(t *testing.T) {
	l := newFakeLookup()
	r := testResolver(l, newClock())

	_, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("bogus"))
	assert.ErrorIs(t, err, ErrChannelNotFound)
	assert.Zero(t, l.calls, "unrecognized labels must fail before any remote call")

	_, err = r.Resolve(context.Background(), "ripgrep", descriptor.Parse("19.03"))
	assert.ErrorIs(t, err, ErrChannelNotFound)
	assert.Equal(t, 1, l.calls, "not-found answers are never retried")
}

func TestResolve_ChannelWithoutPackage(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-23.11", "other", "1.0")
	r := testResolver(l, newClock())

	_, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("23.11"))
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestResolve_TransientFailureRetriedOnce(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-unstable", "ripgrep", "14.1.0")
	l.failFirst[DefaultUpstream+"/nixos-unstable"] = 1
	r := testResolver(l, newClock())

	ref, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("unstable"))
	require.NoError(t, err)
	assert.Equal(t, "14.1.0", ref.Version)
	assert.Equal(t, 2, l.calls)
}

func TestResolve_PersistentFailureSurfacesLookupFailed(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-unstable", "ripgrep", "14.1.0")
	l.failFirst[DefaultUpstream+"/nixos-unstable"] = 5
	c := newClock()
	cache := newMemCache(c.Now)
	r := testResolver(l, c, WithCache(cache))

	_, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.Equal(t, 2, l.calls, "one attempt plus one retry")
	assert.Zero(t, cache.puts, "failures are never cached")
}

func TestResolve_CommitWithUnknownVersion(t *testing.T) {
	l := newFakeLookup()
	c := newClock()
	cache := newMemCache(c.Now)
	r := testResolver(l, c, WithCache(cache))

	ref, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("cb82756"))
	require.NoError(t, err)
	assert.Equal(t, "cb82756", ref.Commit)
	assert.Equal(t, "github:NixOS/nixpkgs/cb82756", ref.Source)
	assert.False(t, ref.VersionKnown())
	assert.Equal(t, "unknown", ref.DisplayVersion())
	assert.Zero(t, cache.puts)
}

func TestResolve_CommitWithKnownVersionIsCached(t *testing.T) {
	l := newFakeLookup()
	l.offer("cb82756", "ripgrep", "13.0.0")
	c := newClock()
	cache := newMemCache(c.Now)
	r := testResolver(l, c, WithCache(cache))

	ref, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse("cb82756"))
	require.NoError(t, err)
	assert.Equal(t, "13.0.0", ref.Version)
	assert.Equal(t, 1, cache.puts)
}

func TestResolve_PinsChannelToRevision(t *testing.T) {
	l := newFakeLookup()
	l.revisions = map[string]string{DefaultUpstream + "/nixos-unstable": "abc123def456"}
	l.offer("abc123def456", "ripgrep", "14.1.0")
	r := testResolver(pinningLookup{l}, newClock())

	ref, err := r.Resolve(context.Background(), "ripgrep", descriptor.Parse(""))
	require.NoError(t, err)
	assert.Equal(t, "unstable", ref.Channel)
	assert.Equal(t, "abc123def456", ref.Commit)
	assert.Equal(t, "github:NixOS/nixpkgs/abc123def456", ref.Source)
}

func TestVersions(t *testing.T) {
	l := newFakeLookup()
	l.offer("nixos-23.11", "ripgrep", "14.0.3")
	l.offer("nixos-unstable", "ripgrep", "14.1.0")
	l.offer("nixos-unstable", "other", "1")
	r := testResolver(l, newClock())

	got, err := r.Versions(context.Background(), "ripgrep")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "unstable", got[0].Channel.Label)
	assert.Equal(t, "14.1.0", got[0].Version)
	assert.Equal(t, "23.11", got[1].Channel.Label)

	got, err = r.Versions(context.Background(), "other")
	require.NoError(t, err)
	assert.True(t, got[1].Missing)
}

func TestChannelList_Find(t *testing.T) {
	l := ChannelList(DefaultChannels())

	ch, ok := l.Find("unstable")
	require.True(t, ok)
	assert.Equal(t, "nixos-unstable", ch.Branch)

	ch, ok = l.Find("nixos-25.11")
	require.True(t, ok)
	assert.Equal(t, "25.11", ch.Label)

	ch, ok = l.Find("23.05")
	require.True(t, ok)
	assert.Equal(t, "nixos-23.05", ch.Branch)

	ch, ok = l.Find("nixpkgs-unstable")
	require.True(t, ok)
	assert.Equal(t, "nixpkgs-unstable", ch.Branch)

	_, ok = l.Find("latest")
	assert.False(t, ok)
}

func TestChannelList_SearchOrder(t *testing.T) {
	l := ChannelList(DefaultChannels())
	labels := func(chs []Channel) []string {
		out := make([]string, len(chs))
		for i, ch := range chs {
			out[i] = ch.Label
		}
		return out
	}
	assert.Equal(t, []string{"unstable", "26.05", "25.11", "25.05"}, labels(l.SearchOrder(TieBreakNewest)))
	assert.Equal(t, []string{"25.05", "25.11", "26.05", "unstable"}, labels(l.SearchOrder(TieBreakOldest)))
	assert.Equal(t, []string{"26.05", "25.11", "unstable", "25.05"}, labels(l.SearchOrder(TieBreakListed)))
}

func TestParseTieBreak(t *testing.T) {
	tb, err := ParseTieBreak("")
	require.NoError(t, err)
	assert.Equal(t, TieBreakNewest, tb)

	tb, err = ParseTieBreak("Listed")
	require.NoError(t, err)
	assert.Equal(t, TieBreakListed, tb)

	_, err = ParseTieBreak("random")
	assert.Error(t, err)
}

func TestChannelList_Validate(t *testing.T) {
	assert.NoError(t, ChannelList(DefaultChannels()).Validate())
	assert.Error(t, ChannelList{{Label: "", Branch: "nixos-unstable"}}.Validate())
	assert.Error(t, ChannelList{{Label: "x", Branch: "main"}}.Validate())
	assert.Error(t, ChannelList{
		{Label: "a", Branch: "nixos-unstable"},
		{Label: "a", Branch: "nixos-23.11"},
	}.Validate())
}
