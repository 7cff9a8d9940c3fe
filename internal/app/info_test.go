package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/nixbrew/internal/registry"
	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

func TestRenderInfo(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	ref := resolve.ResolvedReference{
		Package: "ripgrep",
		Channel: "unstable",
		Commit:  "0123456789abcdef",
		Version: "14.1.0",
		Source:  resolve.DefaultUpstream + "/0123456789abcdef",
	}
	rec := &registry.Record{
		Name:    "ripgrep",
		Current: ref,
		Pinned:  true,
		History: registry.NewHistory(registry.HistoryEntry{Ref: ref, Action: registry.ActionPin}),
	}

	buf := &bytes.Buffer{}
	renderInfo(buf, rec, "")
	out := buf.String()
	for _, want := range []string{
		"Package: ripgrep",
		"Version:     14.1.0",
		"Commit:      0123456789abcdef",
		"Installable: github:NixOS/nixpkgs/0123456789abcdef#ripgrep",
		"Pinned:      yes",
		"History:     1 entry",
		"nixbrew create-flake ripgrep",
	} {
		assert.Contains(t, out, want)
	}
}

func TestInfoCommand(t *testing.T) {
	te := newTestEngine(t, false)
	te.lookup.offer("nixos-unstable", "ripgrep", "14.1.0")
	_, err := te.Install(context.Background(), "ripgrep", nil)
	require.NoError(t, err)

	orig := openEngine
	openEngine = func(*cobra.Command) (*engine, error) { return te.engine, nil }
	defer func() { openEngine = orig }()

	te.out.Reset()
	require.NoError(t, runInfo(infoCmd, []string{"rg"}))
	assert.Contains(t, te.out.String(), "Flake:       "+te.cfg.FlakeDir())

	assert.Error(t, runInfo(infoCmd, []string{"jq"}), "package that is not installed")
}
