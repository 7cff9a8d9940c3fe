package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var (
	upgradeFlagAll   bool
	upgradeFlagForce bool
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [package]",
	Short: "Upgrade packages to the newest version on their channel",
	Long: `Re-resolve installed packages against the channel they came from and
install the result when it differs from what is installed. Packages
installed from a commit are moved to the default channel.

Pinned packages are skipped unless --force is given.`,
	Example: `  nixbrew upgrade ripgrep
  nixbrew upgrade --all
  nixbrew upgrade jq --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUpgrade,
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeFlagAll, "all", false, "Upgrade every installed package")
	upgradeCmd.Flags().BoolVar(&upgradeFlagForce, "force", false, "Upgrade pinned packages too")

	RootCmd.AddCommand(upgradeCmd)
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	if upgradeFlagAll == (len(args) == 1) {
		return errors.New("specify a package or --all")
	}

	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		if !upgradeFlagAll {
			res, err := e.Upgrade(ctx, args[0], upgradeFlagForce)
			if err != nil {
				return err
			}
			printUpgrade(out, res)
			return nil
		}

		results, err := e.UpgradeAll(ctx, upgradeFlagForce)
		applied := 0
		for _, res := range results {
			printUpgrade(out, res)
			if res.Status == upgradeApplied {
				applied++
			}
		}
		fmt.Fprintf(out, "\n%d of %d package(s) upgraded\n", applied, len(results))
		return err
	})
}

func printUpgrade(out io.Writer, res upgradeResult) {
	switch res.Status {
	case upgradeApplied:
		fmt.Fprintf(out, "✓ Upgraded %s %s -> %s (%s)\n", res.Package, res.From.DisplayVersion(), res.To.DisplayVersion(), res.To.Origin())
	case upgradeCurrent:
		fmt.Fprintf(out, "  %s %s is up to date\n", res.Package, res.From.DisplayVersion())
	case upgradeSkippedPinned:
		fmt.Fprintf(out, "  %s is pinned at %s, skipped (use --force)\n", res.Package, res.From.DisplayVersion())
	}
}
