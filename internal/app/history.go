package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/nixbrew/internal/output"
)

var historyCmd = &cobra.Command{
	Use:   "history <package>",
	Short: "Show the recorded history of a package",
	Long: `Show every install, upgrade, pin and rollback recorded for a package,
oldest first. For a package nixbrew has never installed, the versions
each channel currently offers are shown instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	RootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		entries, versions, err := e.History(ctx, args[0])
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			fmt.Fprint(out, output.RenderHistoryTable(entries))
			return nil
		}
		fmt.Fprintf(out, "No history recorded for %s. Available versions:\n\n", args[0])
		fmt.Fprint(out, output.RenderVersionsTable(versions))
		return nil
	})
}
