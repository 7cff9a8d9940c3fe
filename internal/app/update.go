package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Forget cached resolutions and pin the nixpkgs registry entry",
	Long: `Drop every cached resolution so the next command sees the channels as
they are now, and pin the user's nixpkgs flake registry entry to the
default channel.`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	RootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		dropped, err := e.Update(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Cleared %d cached resolution(s)\n", dropped)
		fmt.Fprintf(out, "✓ nixpkgs pinned to %s\n", e.cfg.DefaultChannel)
		return nil
	})
}
