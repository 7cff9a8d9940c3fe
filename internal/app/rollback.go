package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <package> <version>",
	Short: "Reinstall a version the package had before",
	Long: `Reinstall the most recent recorded reference of a package whose version
matches. Only versions that appear in the package history can be
restored; run 'nixbrew history <package>' to see them.`,
	Example: `  nixbrew rollback ripgrep 13.0.0`,
	Args:    cobra.ExactArgs(2),
	RunE:    runRollback,
}

func init() {
	RootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		ref, err := e.Rollback(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Rolled back %s to %s (%s)\n", ref.Package, ref.DisplayVersion(), ref.Origin())
		return nil
	})
}
