package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/nixbrew/internal/flake"
	"github.com/blackwell-systems/nixbrew/internal/output"
	"github.com/blackwell-systems/nixbrew/internal/registry"
)

var infoCmd = &cobra.Command{
	Use:   "info <package>",
	Short: "Show what nixbrew knows about an installed package",
	Long: `Display the current reference of an installed package: version, channel,
commit, the flake installable nix was given and the generated flake.`,
	Example: `  nixbrew info ripgrep`,
	Args:    cobra.ExactArgs(1),
	RunE:    runInfo,
}

func init() {
	RootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(_ context.Context, e *engine, out io.Writer) error {
		pkg, err := e.packageName(args[0])
		if err != nil {
			return err
		}
		rec, err := e.registry.Get(pkg)
		if err != nil {
			return fmt.Errorf("%w\nRun 'nixbrew history %s' to see the versions on offer", err, args[0])
		}

		flakePath := filepath.Join(flake.Dir(e.cfg.FlakeDir(), pkg), flake.FileName)
		if _, err := os.Stat(flakePath); err != nil {
			flakePath = ""
		}
		renderInfo(out, rec, flakePath)
		return nil
	})
}

func renderInfo(out io.Writer, rec *registry.Record, flakePath string) {
	const (
		colorReset = "\033[0m"
		colorBold  = "\033[1m"
	)
	bold, reset := "", ""
	if output.IsColorEnabled() {
		bold, reset = colorBold, colorReset
	}

	ref := rec.Current
	fmt.Fprintf(out, "\n%sPackage: %s%s\n", bold, rec.Name, reset)
	fmt.Fprintf(out, "Version:     %s\n", ref.DisplayVersion())
	if ref.Channel != "" {
		fmt.Fprintf(out, "Channel:     %s\n", ref.Channel)
	}
	if ref.Commit != "" {
		fmt.Fprintf(out, "Commit:      %s\n", ref.Commit)
	}
	fmt.Fprintf(out, "Installable: %s\n", ref.Installable())
	if !ref.ResolvedAt.IsZero() {
		fmt.Fprintf(out, "Resolved:    %s\n", ref.ResolvedAt.Local().Format("2006-01-02 15:04"))
	}
	pinned := "no"
	if rec.Pinned {
		pinned = "yes (upgrade skips it unless --force)"
	}
	fmt.Fprintf(out, "Pinned:      %s\n", pinned)
	fmt.Fprintf(out, "History:     %d entr%s\n", rec.History.Len(), pluralY(rec.History.Len()))
	if flakePath != "" {
		fmt.Fprintf(out, "Flake:       %s\n", flakePath)
	} else {
		fmt.Fprintf(out, "Flake:       none (run 'nixbrew create-flake %s')\n", rec.Name)
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
