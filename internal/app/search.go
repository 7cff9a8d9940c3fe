package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/nixbrew/internal/output"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the default channel for packages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	RootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *engine, out io.Writer) error {
		spinner := output.NewSpinner("Searching " + e.cfg.DefaultChannel)
		spinner.SetWriter(e.errOut)
		spinner.Start()
		results, err := e.Search(ctx, args[0])
		spinner.Stop()
		if err != nil {
			return err
		}
		fmt.Fprint(out, output.RenderSearchTable(results))
		return nil
	})
}
