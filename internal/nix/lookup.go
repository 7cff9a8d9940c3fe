package nix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

var (
	_ resolve.Lookup         = (*Lookup)(nil)
	_ resolve.RevisionLookup = (*Lookup)(nil)
)

// Lookup answers version questions by evaluating flakes with nix.
type Lookup struct {
	runner Runner
}

// NewLookup returns a lookup driven by runner.
func NewLookup(runner Runner) *Lookup {
	return &Lookup{runner: runner}
}

// PackageVersion evaluates <source>#<pkg>.version.
func (l *Lookup) PackageVersion(ctx context.Context, source, pkg string) (string, error) {
	out, err := l.runner.Output(ctx, "eval", "--json", source+"#"+pkg+".version")
	if err != nil {
		return "", classifyEvalError(err)
	}

	var version string
	if err := json.Unmarshal(out, &version); err != nil {
		return "", fmt.Errorf("%w: unexpected version output %q", resolve.ErrPackageUnknown, strings.TrimSpace(string(out)))
	}
	return version, nil
}

// LockedRevision returns the commit source currently resolves to.
func (l *Lookup) LockedRevision(ctx context.Context, source string) (string, error) {
	out, err := l.runner.Output(ctx, "flake", "metadata", "--json", source)
	if err != nil {
		return "", classifyEvalError(err)
	}

	var meta struct {
		Revision string `json:"revision"`
		Locked   struct {
			Rev string `json:"rev"`
		} `json:"locked"`
	}
	if err := json.Unmarshal(out, &meta); err != nil {
		return "", fmt.Errorf("failed to parse flake metadata for %s: %w", source, err)
	}
	if meta.Locked.Rev != "" {
		return meta.Locked.Rev, nil
	}
	return meta.Revision, nil
}

var sourceUnknownMarkers = []string{
	"HTTP error 404",
	"Cannot find Git revision",
	"cannot find flake",
	"is not a valid URL",
	"does not exist",
}

// classifyEvalError maps nix's stderr onto the resolver's error kinds.
// Anything unrecognised is treated as transient.
func classifyEvalError(err error) error {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return err
	}
	stderr := cmdErr.Stderr

	for _, m := range sourceUnknownMarkers {
		if strings.Contains(stderr, m) {
			return fmt.Errorf("%w: %w", resolve.ErrSourceUnknown, err)
		}
	}
	if strings.Contains(stderr, "does not provide attribute") ||
		strings.Contains(stderr, "attribute '") && strings.Contains(stderr, "missing") {
		return fmt.Errorf("%w: %w", resolve.ErrPackageUnknown, err)
	}
	return err
}

// SearchResult is one hit of `nix search`.
type SearchResult struct {
	AttrPath    string `json:"-"`
	Name        string `json:"pname"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Search runs `nix search` against source and returns hits sorted by
// attribute path.
func (l *Lookup) Search(ctx context.Context, source, query string) ([]SearchResult, error) {
	out, err := l.runner.Output(ctx, "search", "--json", source, query)
	if err != nil {
		return nil, fmt.Errorf("search %s failed: %w", source, err)
	}

	var hits map[string]SearchResult
	if err := json.Unmarshal(out, &hits); err != nil {
		return nil, fmt.Errorf("failed to parse search output: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for attr, hit := range hits {
		hit.AttrPath = attr
		results = append(results, hit)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].AttrPath < results[j].AttrPath
	})
	return results, nil
}

// PinRegistry points the user's "nixpkgs" flake registry entry at source.
func (l *Lookup) PinRegistry(ctx context.Context, source string) error {
	if err := l.runner.Stream(ctx, "registry", "pin", "nixpkgs", source); err != nil {
		return fmt.Errorf("failed to pin nixpkgs to %s: %w", source, err)
	}
	return nil
}

// LockFlake writes flake.lock for the flake in dir.
func (l *Lookup) LockFlake(ctx context.Context, dir string) error {
	if err := l.runner.Stream(ctx, "flake", "lock", dir); err != nil {
		return fmt.Errorf("failed to lock flake in %s: %w", dir, err)
	}
	return nil
}
