package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var createFlakeFlagLock bool

var createFlakeCmd = &cobra.Command{
	Use:   "create-flake <package> [version]",
	Short: "Write a flake.nix that provides a package at a version",
	Long: `Write <state-dir>/flakes/<package>/flake.nix exposing the package as
packages.<system>.default. Without a version an installed package uses
its current version; otherwise the version is resolved like install does.
The profile and the registry are not changed.`,
	Example: `  nixbrew create-flake ripgrep 13.0.0
  nixbrew create-flake jq --lock`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCreateFlake,
}

func init() {
	createFlakeCmd.Flags().BoolVar(&createFlakeFlagLock, "lock", false, "Run 'nix flake lock' on the generated flake")

	RootCmd.AddCommand(createFlakeCmd)
}

func runCreateFlake(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		path, err := e.CreateFlake(ctx, args[0], optionalArg(args, 1), createFlakeFlagLock)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote %s\n", path)
		return nil
	})
}
