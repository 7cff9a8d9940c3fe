package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <package> [version]",
	Short: "Install a package at a version, channel or commit",
	Long: `Install a package into your Nix profile.

The optional version selects what gets installed:
  14.1.0        the newest channel that ships exactly this version
  23.11         the nixos-23.11 channel (any configured channel label)
  cb82756ecc37  a nixpkgs commit (6 or more hex characters)

Without a version the default channel is used. Installing a package that
is already installed replaces it.`,
	Example: `  nixbrew install ripgrep
  nixbrew install ripgrep 13.0.0
  nixbrew install nodejs 23.11
  nixbrew install jq cb82756ecc37`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInstall,
}

func init() {
	RootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		ref, err := e.Install(ctx, args[0], optionalArg(args, 1))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Installed %s %s from %s\n", ref.Package, ref.DisplayVersion(), ref.Origin())
		return nil
	})
}
