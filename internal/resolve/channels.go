package resolve

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// DefaultUpstream is the flake reference prefix channels and commits resolve against.
const DefaultUpstream = "github:NixOS/nixpkgs"

// DefaultChannelLabel is used when no version is requested.
const DefaultChannelLabel = "unstable"

// Channel is a named snapshot of the upstream package collection.
type Channel struct {
	Label  string `yaml:"label"`
	Branch string `yaml:"branch"`
}

var (
	releasePattern = regexp.MustCompile(`^(\d{2})\.(\d{2})$`)
	branchPattern  = regexp.MustCompile(`^(nixos|nixpkgs)-[A-Za-z0-9._-]+$`)
)

// Recency orders channels: unstable is the most recent, numbered releases
// order by year and month, anything else sorts last.
func (c Channel) Recency() int {
	name := strings.TrimPrefix(strings.TrimPrefix(c.Branch, "nixos-"), "nixpkgs-")
	if c.Label == "unstable" || name == "unstable" {
		return math.MaxInt32
	}
	for _, candidate := range []string{c.Label, name} {
		m := releasePattern.FindStringSubmatch(candidate)
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return year*100 + month
	}
	return 0
}

// DefaultChannels is the search list used when none is configured: current
// stable, previous stable, unstable, and the release before that.
func DefaultChannels() []Channel {
	return []Channel{
		{Label: "26.05", Branch: "nixos-26.05"},
		{Label: "25.11", Branch: "nixos-25.11"},
		{Label: "unstable", Branch: "nixos-unstable"},
		{Label: "25.05", Branch: "nixos-25.05"},
	}
}

// TieBreak decides which channel wins when several offer the requested version.
type TieBreak string

const (
	TieBreakNewest TieBreak = "newest"
	TieBreakOldest TieBreak = "oldest"
	TieBreakListed TieBreak = "listed"
)

// ParseTieBreak validates a tie-break policy name. Empty means newest.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(s))) {
	case "", TieBreakNewest:
		return TieBreakNewest, nil
	case TieBreakOldest:
		return TieBreakOldest, nil
	case TieBreakListed:
		return TieBreakListed, nil
	default:
		return "", fmt.Errorf("unknown tie-break policy %q (want newest, oldest or listed)", s)
	}
}

// ChannelList is the ordered set of channels known to the resolver.
type ChannelList []Channel

// Find recognizes a channel label. Listed channels match by label or branch;
// unlisted "YY.MM" labels map to nixos-YY.MM, and nixos-*/nixpkgs-* names are
// taken as branches verbatim.
func (l ChannelList) Find(label string) (Channel, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Channel{}, false
	}
	for _, ch := range l {
		if ch.Label == label || ch.Branch == label {
			return ch, true
		}
	}
	if releasePattern.MatchString(label) {
		return Channel{Label: label, Branch: "nixos-" + label}, true
	}
	if branchPattern.MatchString(label) {
		return Channel{Label: label, Branch: label}, true
	}
	return Channel{}, false
}

// SearchOrder returns the channels in the order a semantic version search
// visits them; the first channel offering the version wins.
func (l ChannelList) SearchOrder(policy TieBreak) []Channel {
	out := slices.Clone([]Channel(l))
	switch policy {
	case TieBreakListed:
	case TieBreakOldest:
		slices.SortStableFunc(out, func(a, b Channel) int {
			return a.Recency() - b.Recency()
		})
	default:
		slices.SortStableFunc(out, func(a, b Channel) int {
			return b.Recency() - a.Recency()
		})
	}
	return out
}

// Validate checks that every channel has a label and a well-formed branch.
func (l ChannelList) Validate() error {
	seen := make(map[string]bool, len(l))
	for i, ch := range l {
		if strings.TrimSpace(ch.Label) == "" {
			return fmt.Errorf("channel %d: label is required", i)
		}
		if !branchPattern.MatchString(ch.Branch) {
			return fmt.Errorf("channel %q: invalid branch %q", ch.Label, ch.Branch)
		}
		if seen[ch.Label] {
			return fmt.Errorf("channel %q listed twice", ch.Label)
		}
		seen[ch.Label] = true
	}
	return nil
}
