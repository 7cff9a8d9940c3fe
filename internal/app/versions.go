package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/nixbrew/internal/output"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <package>",
	Short: "Show the version of a package on every channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

func init() {
	RootCmd.AddCommand(versionsCmd)
}

func runVersions(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		versions, err := e.Versions(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(out, output.RenderVersionsTable(versions))
		return nil
	})
}
