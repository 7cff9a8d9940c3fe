// Package flake renders a reproducible flake.nix for an installed package.
package flake

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	"github.com/blackwell-systems/nixbrew/internal/atomicfile"
	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

// ErrFlakeWriteFailed wraps filesystem errors while writing a flake.
var ErrFlakeWriteFailed = errors.New("failed to write flake")

// FileName is the name of the rendered file inside a package's flake directory.
const FileName = "flake.nix"

// systems is sorted; the rendered output must not depend on the host.
var systems = []string{
	"aarch64-darwin",
	"aarch64-linux",
	"x86_64-darwin",
	"x86_64-linux",
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_'-]*$`)

var flakeTmpl = template.Must(template.New("flake").Parse(`{
  description = {{ .Description }};

  # {{ .Package }} {{ .Version }} resolved from {{ .Origin }}
  inputs = {
    nixpkgs.url = {{ .URL }};
  };

  outputs = { self, nixpkgs }:
    let
      systems = [{{ range .Systems }} "{{ . }}"{{ end }} ];
      forAllSystems = f: nixpkgs.lib.genAttrs systems (system: f nixpkgs.legacyPackages.${system});
    in {
      packages = forAllSystems (pkgs: {
        default = pkgs.{{ .Attr }};
      });
    };
}
`))

type flakeData struct {
	Description string
	Package     string
	Version     string
	Origin      string
	URL         string
	Systems     []string
	Attr        string
}

// Render returns the flake.nix text for pkg pinned to ref. Equal inputs always
// produce byte-identical output.
func Render(pkg string, ref resolve.ResolvedReference) string {
	data := flakeData{
		Description: nixString(fmt.Sprintf("nixbrew flake for %s %s", pkg, ref.DisplayVersion())),
		Package:     commentSafe(pkg),
		Version:     commentSafe(ref.DisplayVersion()),
		Origin:      commentSafe(origin(ref)),
		URL:         nixString(ref.Source),
		Systems:     systems,
		Attr:        attrPath(pkg),
	}

	var buf bytes.Buffer
	// Execution only fails on template or writer errors, neither of which can
	// happen with a parsed template and a bytes.Buffer.
	_ = flakeTmpl.Execute(&buf, data)
	return buf.String()
}

// Dir returns the directory holding pkg's flake under root.
func Dir(root, pkg string) string {
	return filepath.Join(root, pkg)
}

// Write renders pkg's flake into <root>/<pkg>/flake.nix and returns its path.
func Write(root, pkg string, ref resolve.ResolvedReference) (string, error) {
	path := filepath.Join(Dir(root, pkg), FileName)
	if err := atomicfile.WriteFile(path, []byte(Render(pkg, ref)), 0o644); err != nil {
		return "", fmt.Errorf("%w for %s: %w", ErrFlakeWriteFailed, pkg, err)
	}
	return path, nil
}

func origin(ref resolve.ResolvedReference) string {
	if ref.Channel != "" && ref.Commit != "" {
		return fmt.Sprintf("channel %s at %s", ref.Channel, ref.Commit)
	}
	if ref.Channel != "" {
		return "channel " + ref.Channel
	}
	return "commit " + ref.Commit
}

// attrPath turns "python3Packages.requests" into a Nix attribute path,
// quoting segments that are not plain identifiers.
func attrPath(pkg string) string {
	segments := strings.Split(pkg, ".")
	for i, s := range segments {
		if !identRE.MatchString(s) {
			segments[i] = nixString(s)
		}
	}
	return strings.Join(segments, ".")
}

// nixString quotes s as a Nix string literal.
func nixString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func commentSafe(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
