package nix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrNotInProfile means no profile element provides the package.
var ErrNotInProfile = errors.New("package not found in profile")

// Element is one entry of the user's nix profile.
type Element struct {
	// Name identifies the element for `nix profile remove`: the element name
	// on newer nix, the numeric index on older releases.
	Name        string
	AttrPath    string
	OriginalURL string
	URL         string
	StorePaths  []string
	Active      bool
}

// Package returns the package attribute the element was installed from,
// e.g. "ripgrep" for "legacyPackages.x86_64-linux.ripgrep".
func (e Element) Package() string {
	parts := strings.SplitN(e.AttrPath, ".", 3)
	if len(parts) == 3 && (parts[0] == "legacyPackages" || parts[0] == "packages") {
		return parts[2]
	}
	return e.AttrPath
}

// Installable returns a reference that reinstalls exactly this element,
// preferring the locked URL over the one originally requested.
func (e Element) Installable() string {
	if e.AttrPath == "" {
		return ""
	}
	url := e.URL
	if url == "" {
		url = e.OriginalURL
	}
	if url == "" {
		return ""
	}
	return url + "#" + e.AttrPath
}

// profileList is the `nix profile list --json` document. Elements is an
// object keyed by name since manifest version 3 and an array before that.
type profileList struct {
	Version  int             `json:"version"`
	Elements json.RawMessage `json:"elements"`
}

type profileElement struct {
	Active      *bool    `json:"active"`
	AttrPath    string   `json:"attrPath"`
	OriginalURL string   `json:"originalUrl"`
	URL         string   `json:"url"`
	StorePaths  []string `json:"storePaths"`
}

func (p profileElement) element(name string) Element {
	return Element{
		Name:        name,
		AttrPath:    p.AttrPath,
		OriginalURL: p.OriginalURL,
		URL:         p.URL,
		StorePaths:  p.StorePaths,
		Active:      p.Active == nil || *p.Active,
	}
}

// Profile manages the default nix profile.
type Profile struct {
	runner Runner
}

// NewProfile returns a profile driven by runner.
func NewProfile(runner Runner) *Profile {
	return &Profile{runner: runner}
}

// List returns the profile's elements sorted by name.
func (p *Profile) List(ctx context.Context) ([]Element, error) {
	out, err := p.runner.Output(ctx, "profile", "list", "--json")
	if err != nil {
		return nil, fmt.Errorf("failed to list profile: %w", err)
	}
	return parseProfileList(out)
}

// Find returns the element providing pkg.
func (p *Profile) Find(ctx context.Context, pkg string) (Element, error) {
	elements, err := p.List(ctx)
	if err != nil {
		return Element{}, err
	}
	for _, e := range elements {
		if e.Package() == pkg {
			return e, nil
		}
	}
	return Element{}, fmt.Errorf("%s: %w", pkg, ErrNotInProfile)
}

// Add installs installable into the profile.
func (p *Profile) Add(ctx context.Context, installable string) error {
	if err := p.runner.Stream(ctx, "profile", "add", installable); err != nil {
		return fmt.Errorf("failed to add %s: %w", installable, err)
	}
	return nil
}

// Remove uninstalls the element providing pkg.
func (p *Profile) Remove(ctx context.Context, pkg string) error {
	e, err := p.Find(ctx, pkg)
	if err != nil {
		return err
	}
	if err := p.runner.Stream(ctx, "profile", "remove", e.Name); err != nil {
		return fmt.Errorf("failed to remove %s: %w", pkg, err)
	}
	return nil
}

// Replace installs installable for pkg, first removing whatever element
// currently provides pkg. Nix refuses two elements with the same name.
// If the add fails, the removed element is re-added from its locked URL.
func (p *Profile) Replace(ctx context.Context, pkg, installable string) error {
	old, err := p.Find(ctx, pkg)
	switch {
	case errors.Is(err, ErrNotInProfile):
		return p.Add(ctx, installable)
	case err != nil:
		return err
	}

	if err := p.runner.Stream(ctx, "profile", "remove", old.Name); err != nil {
		return fmt.Errorf("failed to remove %s: %w", pkg, err)
	}

	addErr := p.Add(ctx, installable)
	if addErr == nil {
		return nil
	}
	restore := old.Installable()
	if restore == "" {
		return fmt.Errorf("%w; previous %s could not be restored", addErr, pkg)
	}
	if err := p.Add(ctx, restore); err != nil {
		return errors.Join(addErr, fmt.Errorf("failed to restore previous %s: %w", pkg, err))
	}
	return addErr
}

func parseProfileList(data []byte) ([]Element, error) {
	var list profileList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse profile list: %w", err)
	}

	raw := bytes.TrimSpace(list.Elements)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var elements []Element
	if raw[0] == '[' {
		var items []profileElement
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to parse profile elements: %w", err)
		}
		for i, item := range items {
			elements = append(elements, item.element(strconv.Itoa(i)))
		}
		return elements, nil
	}

	var named map[string]profileElement
	if err := json.Unmarshal(raw, &named); err != nil {
		return nil, fmt.Errorf("failed to parse profile elements: %w", err)
	}
	for name, item := range named {
		elements = append(elements, item.element(name))
	}
	sort.Slice(elements, func(i, j int) bool {
		return elements[i].Name < elements[j].Name
	})
	return elements, nil
}
