// Package descriptor classifies user-supplied version strings.
//
// A descriptor is one of four kinds: unspecified (no version given), a semantic
// version ("14.1.0"), a channel label ("23.11", "unstable") or a commit-like
// reference ("cb82756"). Parsing is total: every input yields a descriptor.
package descriptor

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Kind identifies which variant a Descriptor holds.
type Kind int

const (
	Unspecified Kind = iota
	Semantic
	Channel
	CommitRef
)

func (k Kind) String() string {
	switch k {
	case Semantic:
		return "semver"
	case Channel:
		return "channel"
	case CommitRef:
		return "commit"
	default:
		return "unspecified"
	}
}

// minCommitLen is the shortest hex string treated as a commit reference.
const minCommitLen = 6

var (
	semanticPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)
	channelPattern  = regexp.MustCompile(`^\d+\.\d+$`)
	hexPattern      = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// Descriptor is an immutable, classified version request.
type Descriptor struct {
	kind      Kind
	raw       string
	version   *semver.Version
	label     string
	commit    string
	ambiguous bool
}

// Parse classifies input. Blank input yields an Unspecified descriptor.
func Parse(input string) Descriptor {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Descriptor{kind: Unspecified}
	}

	if semanticPattern.MatchString(raw) {
		// Date-style versions such as "2024.03.10" are not strict semver
		// because of the leading zero; they stay Semantic and compare by
		// their exact text.
		if v, err := semver.StrictNewVersion(raw); err == nil {
			return Descriptor{kind: Semantic, raw: raw, version: v}
		}
		return Descriptor{kind: Semantic, raw: raw}
	}

	if channelPattern.MatchString(raw) {
		return Descriptor{kind: Channel, raw: raw, label: raw}
	}

	if len(raw) >= minCommitLen && hexPattern.MatchString(raw) {
		return Descriptor{kind: CommitRef, raw: raw, commit: strings.ToLower(raw)}
	}

	return Descriptor{kind: Channel, raw: raw, label: raw, ambiguous: true}
}

// ParseOptional parses input when present and returns Unspecified for nil.
func ParseOptional(input *string) Descriptor {
	if input == nil {
		return Descriptor{kind: Unspecified}
	}
	return Parse(*input)
}

// Kind returns the descriptor's variant.
func (d Descriptor) Kind() Kind { return d.kind }

// Raw returns the trimmed input the descriptor was parsed from.
func (d Descriptor) Raw() string { return d.raw }

// Label returns the channel label for Channel descriptors.
func (d Descriptor) Label() string { return d.label }

// Commit returns the lower-cased hash for CommitRef descriptors.
func (d Descriptor) Commit() string { return d.commit }

// Ambiguous reports whether classification fell back to a best-effort guess.
func (d Descriptor) Ambiguous() bool { return d.ambiguous }

// Major returns the major component of a Semantic descriptor.
func (d Descriptor) Major() uint64 {
	if d.version == nil {
		return 0
	}
	return d.version.Major()
}

// Minor returns the minor component of a Semantic descriptor.
func (d Descriptor) Minor() uint64 {
	if d.version == nil {
		return 0
	}
	return d.version.Minor()
}

// Patch returns the patch component of a Semantic descriptor.
func (d Descriptor) Patch() uint64 {
	if d.version == nil {
		return 0
	}
	return d.version.Patch()
}

// Prerelease returns the pre-release suffix of a Semantic descriptor, if any.
func (d Descriptor) Prerelease() string {
	if d.version == nil {
		return ""
	}
	return d.version.Prerelease()
}

// Version returns the canonical semantic version string, or "" for other kinds.
// Versions that are not strict semver are returned as typed.
func (d Descriptor) Version() string {
	if d.kind != Semantic {
		return ""
	}
	if d.version == nil {
		return d.raw
	}
	return d.version.String()
}

// String returns the normalized form used as a cache key. Different kinds
// never produce the same string.
func (d Descriptor) String() string {
	switch d.kind {
	case Semantic:
		return "semver:" + d.Version()
	case Channel:
		return "channel:" + d.label
	case CommitRef:
		return "commit:" + d.commit
	default:
		return "unspecified"
	}
}

// MatchesVersion reports whether candidate is exactly the version a Semantic
// descriptor asks for. Both sides are compared as semantic versions when the
// candidate parses, otherwise by string.
func (d Descriptor) MatchesVersion(candidate string) bool {
	if d.kind != Semantic {
		return false
	}
	return VersionsEqual(d.raw, candidate)
}

// VersionsEqual compares two package version strings. "14.1.0" and "v14.1.0"
// are equal; "14.1" and "14.1.0" are not, since nixpkgs reports exact strings.
func VersionsEqual(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	va, errA := semver.StrictNewVersion(strings.TrimPrefix(a, "v"))
	vb, errB := semver.StrictNewVersion(strings.TrimPrefix(b, "v"))
	if errA != nil || errB != nil {
		return false
	}
	return va.Equal(vb) && va.Metadata() == vb.Metadata()
}
