package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var pinCmd = &cobra.Command{
	Use:   "pin <package> [version]",
	Short: "Pin a package so upgrade leaves it alone",
	Long: `Pin a package. With a version the package is installed at that version
first; without one the installed version is pinned.`,
	Example: `  nixbrew pin ripgrep
  nixbrew pin nodejs 18.19.0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPin,
}

var unpinCmd = &cobra.Command{
	Use:   "unpin <package>",
	Short: "Allow upgrade to change a pinned package again",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnpin,
}

func init() {
	RootCmd.AddCommand(pinCmd)
	RootCmd.AddCommand(unpinCmd)
}

func runPin(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		ref, err := e.Pin(ctx, args[0], optionalArg(args, 1))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Pinned %s at %s (%s)\n", ref.Package, ref.DisplayVersion(), ref.Origin())
		return nil
	})
}

func runUnpin(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(_ context.Context, e *engine, out io.Writer) error {
		if err := e.Unpin(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Unpinned %s\n", args[0])
		return nil
	})
}
