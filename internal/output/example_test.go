package output_test

import (
	"fmt"
	"time"

	"github.com/blackwell-systems/nixbrew/internal/output"
	"github.com/blackwell-systems/nixbrew/internal/registry"
	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

// Example showing how to render the installed packages
func ExampleRenderRegistryTable() {
	ref := resolve.ResolvedReference{
		Package: "ripgrep",
		Channel: "unstable",
		Version: "14.1.0",
		Source:  "github:NixOS/nixpkgs/nixos-unstable",
	}
	records := []*registry.Record{{
		Name:    "ripgrep",
		Current: ref,
		History: registry.NewHistory(registry.HistoryEntry{Ref: ref, Action: registry.ActionInstall, Timestamp: time.Now()}),
	}}

	fmt.Print(output.RenderRegistryTable(records, time.Now()))
}

// Example showing how to report progress across an upgrade of several packages
func ExampleProgressBar() {
	packages := []string{"ripgrep", "fd", "jq"}
	progress := output.NewProgress(len(packages), "Upgrading packages")
	for range packages {
		progress.Increment()
	}
	progress.Finish()
}
