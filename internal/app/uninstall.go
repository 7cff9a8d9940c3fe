package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <package>",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove a package from the profile and forget its history",
	Args:    cobra.ExactArgs(1),
	RunE:    runUninstall,
}

func init() {
	RootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		if err := e.Uninstall(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Uninstalled %s\n", args[0])
		return nil
	})
}
