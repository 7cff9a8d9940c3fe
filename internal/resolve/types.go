package resolve

import (
	"context"
	"time"
)

// ResolvedReference is the concrete upstream source that answers a version
// request for one package. It is produced by the Resolver and never modified.
type ResolvedReference struct {
	Package    string    `json:"package"`
	Channel    string    `json:"channel,omitempty"`
	Commit     string    `json:"commit,omitempty"`
	Version    string    `json:"version,omitempty"`
	Source     string    `json:"source"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// Installable returns the flake installable for the reference, e.g.
// "github:NixOS/nixpkgs/nixos-23.11#ripgrep".
func (r ResolvedReference) Installable() string {
	return r.Source + "#" + r.Package
}

// VersionKnown reports whether the package version at the source was discovered.
func (r ResolvedReference) VersionKnown() bool {
	return r.Version != ""
}

// DisplayVersion returns the version or "unknown".
func (r ResolvedReference) DisplayVersion() string {
	if r.Version == "" {
		return "unknown"
	}
	return r.Version
}

// Origin returns the channel label, or the short commit for commit references.
func (r ResolvedReference) Origin() string {
	switch {
	case r.Channel != "":
		return r.Channel
	case len(r.Commit) > 12:
		return r.Commit[:12]
	default:
		return r.Commit
	}
}

// Same reports whether two references point at the same resolution.
func (r ResolvedReference) Same(o ResolvedReference) bool {
	return r.Package == o.Package &&
		r.Channel == o.Channel &&
		r.Commit == o.Commit &&
		r.Version == o.Version &&
		r.Source == o.Source &&
		r.ResolvedAt.Equal(o.ResolvedAt)
}

// Lookup queries the upstream package set. Implementations return errors
// wrapping ErrPackageUnknown or ErrSourceUnknown for definitive misses; any
// other error is treated as transient.
type Lookup interface {
	PackageVersion(ctx context.Context, source, pkg string) (string, error)
}

// RevisionLookup is implemented by lookups that can pin a branch source to
// its current commit. When available, channel resolutions record the commit.
type RevisionLookup interface {
	LockedRevision(ctx context.Context, source string) (string, error)
}

// Cache stores resolutions keyed by package and normalized descriptor.
type Cache interface {
	Get(pkg, key string) (ResolvedReference, bool, error)
	Put(ref ResolvedReference, key string, ttl time.Duration) error
}

// ChannelVersion is the version a channel currently offers for a package.
type ChannelVersion struct {
	Channel Channel
	Version string
	Missing bool
}
