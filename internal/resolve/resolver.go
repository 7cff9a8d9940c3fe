// Package resolve maps version descriptors to concrete upstream sources.
//
// A Resolver answers "which nixpkgs snapshot provides this version of this
// package" by consulting a Cache first and a remote Lookup second. Semantic
// versions are searched across an ordered channel list; channels and commits
// resolve directly.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/nixbrew/internal/descriptor"
)

const (
	DefaultTTL     = 24 * time.Hour
	DefaultTimeout = 60 * time.Second

	// maxParallelLookups bounds the fan-out of Versions.
	maxParallelLookups = 4
)

// Resolver resolves descriptors for packages.
type Resolver struct {
	lookup         Lookup
	cache          Cache
	channels       ChannelList
	defaultChannel string
	tieBreak       TieBreak
	upstream       string
	ttl            time.Duration
	timeout        time.Duration
	retry          RetryPolicy
	logger         *slog.Logger
	now            func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache sets the resolution cache. Without one every call is remote.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithChannels sets the channel search list.
func WithChannels(channels []Channel) Option {
	return func(r *Resolver) { r.channels = ChannelList(channels) }
}

// WithDefaultChannel sets the channel used for unspecified descriptors.
func WithDefaultChannel(label string) Option {
	return func(r *Resolver) { r.defaultChannel = label }
}

// WithTieBreak sets which channel wins when several offer a version.
func WithTieBreak(t TieBreak) Option {
	return func(r *Resolver) { r.tieBreak = t }
}

// WithUpstream sets the flake reference prefix, e.g. "github:NixOS/nixpkgs".
func WithUpstream(upstream string) Option {
	return func(r *Resolver) { r.upstream = strings.TrimSuffix(upstream, "/") }
}

// WithTTL sets how long cached resolutions stay valid.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithTimeout bounds each remote lookup attempt.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithRetry sets the retry policy for transient lookup failures.
func WithRetry(p RetryPolicy) Option {
	return func(r *Resolver) { r.retry = p }
}

// WithLogger sets the logger for cache and retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a Resolver backed by lookup.
func New(lookup Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		lookup:         lookup,
		channels:       ChannelList(DefaultChannels()),
		defaultChannel: DefaultChannelLabel,
		tieBreak:       TieBreakNewest,
		upstream:       DefaultUpstream,
		ttl:            DefaultTTL,
		timeout:        DefaultTimeout,
		retry:          DefaultRetryPolicy,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Channels returns the configured channel list.
func (r *Resolver) Channels() ChannelList {
	return r.channels
}

// Resolve returns the reference that provides pkg at the requested version.
// A valid cache entry short-circuits the remote lookup entirely.
func (r *Resolver) Resolve(ctx context.Context, pkg string, d descriptor.Descriptor) (ResolvedReference, error) {
	key := d.String()
	if ref, ok := r.cached(pkg, key); ok {
		r.logger.Debug("resolution cache hit", "package", pkg, "descriptor", key)
		return ref, nil
	}

	var (
		ref ResolvedReference
		err error
	)
	switch d.Kind() {
	case descriptor.Unspecified:
		ref, err = r.resolveChannel(ctx, pkg, r.defaultChannel)
	case descriptor.Channel:
		ref, err = r.resolveChannel(ctx, pkg, d.Label())
	case descriptor.CommitRef:
		ref, err = r.resolveCommit(ctx, pkg, d.Commit())
	case descriptor.Semantic:
		ref, err = r.resolveSemantic(ctx, pkg, d)
	default:
		err = fmt.Errorf("unsupported descriptor kind %v", d.Kind())
	}
	if err != nil {
		return ResolvedReference{}, &ResolutionError{Package: pkg, Descriptor: describe(d), Err: err}
	}

	// A commit whose version could not be read is not worth remembering;
	// the next resolution may discover it.
	if d.Kind() != descriptor.CommitRef || ref.VersionKnown() {
		r.store(ref, key)
	}
	return ref, nil
}

func (r *Resolver) cached(pkg, key string) (ResolvedReference, bool) {
	if r.cache == nil {
		return ResolvedReference{}, false
	}
	ref, ok, err := r.cache.Get(pkg, key)
	if err != nil {
		r.logger.Warn("resolution cache read failed", "package", pkg, "descriptor", key, "error", err)
		return ResolvedReference{}, false
	}
	return ref, ok
}

func (r *Resolver) store(ref ResolvedReference, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(ref, key, r.ttl); err != nil {
		r.logger.Warn("resolution cache write failed", "package", ref.Package, "descriptor", key, "error", err)
	}
}

// resolveChannel resolves pkg against the channel named label, pinning the
// channel to its current commit when the lookup supports it.
func (r *Resolver) resolveChannel(ctx context.Context, pkg, label string) (ResolvedReference, error) {
	ch, ok := r.channels.Find(label)
	if !ok {
		return ResolvedReference{}, fmt.Errorf("%w: %q is not a recognized channel", ErrChannelNotFound, label)
	}

	source, commit, err := r.pin(ctx, ch)
	if err != nil {
		return ResolvedReference{}, err
	}

	version, err := r.retryLookup(ctx, source+"#"+pkg, func(ctx context.Context) (string, error) {
		return r.lookup.PackageVersion(ctx, source, pkg)
	})
	if err != nil {
		return ResolvedReference{}, classify(err, ch, pkg)
	}

	return ResolvedReference{
		Package:    pkg,
		Channel:    ch.Label,
		Commit:     commit,
		Version:    version,
		Source:     source,
		ResolvedAt: r.now().UTC(),
	}, nil
}

// pin returns the source to install from and the commit it is locked to, if
// the lookup can report one.
func (r *Resolver) pin(ctx context.Context, ch Channel) (string, string, error) {
	branchSource := r.branchSource(ch)
	rl, ok := r.lookup.(RevisionLookup)
	if !ok {
		return branchSource, "", nil
	}

	rev, err := r.retryLookup(ctx, branchSource, func(ctx context.Context) (string, error) {
		return rl.LockedRevision(ctx, branchSource)
	})
	if err != nil {
		return "", "", classify(err, ch, "")
	}
	if rev == "" {
		return branchSource, "", nil
	}
	return r.upstream + "/" + rev, rev, nil
}

// resolveCommit never fails on the version lookup: the commit is the answer
// and its package version is recorded only if it can be read.
func (r *Resolver) resolveCommit(ctx context.Context, pkg, commit string) (ResolvedReference, error) {
	source := r.upstream + "/" + commit

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	version, err := r.lookup.PackageVersion(lctx, source, pkg)
	if err != nil {
		if ctx.Err() != nil {
			return ResolvedReference{}, fmt.Errorf("%w: %w", ErrLookupFailed, ctx.Err())
		}
		r.logger.Info("package version at commit unknown", "package", pkg, "commit", commit, "error", err)
		version = ""
	}

	return ResolvedReference{
		Package:    pkg,
		Commit:     commit,
		Version:    version,
		Source:     source,
		ResolvedAt: r.now().UTC(),
	}, nil
}

// resolveSemantic visits channels in tie-break order and returns the first
// one whose package version equals the requested version exactly.
func (r *Resolver) resolveSemantic(ctx context.Context, pkg string, d descriptor.Descriptor) (ResolvedReference, error) {
	order := r.channels.SearchOrder(r.tieBreak)
	offered := make([]string, 0, len(order))

	for _, ch := range order {
		source := r.branchSource(ch)
		version, err := r.retryLookup(ctx, source+"#"+pkg, func(ctx context.Context) (string, error) {
			return r.lookup.PackageVersion(ctx, source, pkg)
		})
		if err != nil {
			if isDefinitive(err) {
				r.logger.Debug("channel skipped", "channel", ch.Label, "package", pkg, "error", err)
				continue
			}
			return ResolvedReference{}, fmt.Errorf("%w: channel %s: %w", ErrLookupFailed, ch.Label, err)
		}

		offered = append(offered, ch.Label+"="+version)
		if !d.MatchesVersion(version) {
			continue
		}

		pinned, commit, err := r.pin(ctx, ch)
		if err != nil {
			return ResolvedReference{}, err
		}
		return ResolvedReference{
			Package:    pkg,
			Channel:    ch.Label,
			Commit:     commit,
			Version:    version,
			Source:     pinned,
			ResolvedAt: r.now().UTC(),
		}, nil
	}

	if len(offered) == 0 {
		return ResolvedReference{}, fmt.Errorf("%w: no searched channel provides %q", ErrVersionNotFound, pkg)
	}
	return ResolvedReference{}, fmt.Errorf("%w: %s is not offered by any channel (have %s)",
		ErrVersionNotFound, d.Version(), strings.Join(offered, ", "))
}

// Versions reports what every known channel currently offers for pkg.
func (r *Resolver) Versions(ctx context.Context, pkg string) ([]ChannelVersion, error) {
	order := r.channels.SearchOrder(TieBreakNewest)
	out := make([]ChannelVersion, len(order))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, ch := range order {
		i, ch := i, ch
		g.Go(func() error {
			source := r.branchSource(ch)
			version, err := r.retryLookup(gctx, source+"#"+pkg, func(ctx context.Context) (string, error) {
				return r.lookup.PackageVersion(ctx, source, pkg)
			})
			out[i] = ChannelVersion{Channel: ch, Version: version}
			if err != nil {
				if isDefinitive(err) {
					out[i].Missing = true
					return nil
				}
				return fmt.Errorf("channel %s: %w", ch.Label, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	return out, nil
}

func (r *Resolver) branchSource(ch Channel) string {
	return r.upstream + "/" + ch.Branch
}

// classify maps a failed lookup to the resolver's error taxonomy.
func classify(err error, ch Channel, pkg string) error {
	switch {
	case errors.Is(err, ErrSourceUnknown):
		return fmt.Errorf("%w: %s (%s): %w", ErrChannelNotFound, ch.Label, ch.Branch, err)
	case errors.Is(err, ErrPackageUnknown):
		return fmt.Errorf("%w: channel %s does not provide %q", ErrVersionNotFound, ch.Label, pkg)
	default:
		return fmt.Errorf("%w: channel %s: %w", ErrLookupFailed, ch.Label, err)
	}
}

func describe(d descriptor.Descriptor) string {
	if d.Kind() == descriptor.Unspecified {
		return "latest"
	}
	return d.Raw()
}
