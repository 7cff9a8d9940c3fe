package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/nixbrew/internal/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List packages installed with nixbrew",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

func init() {
	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(_ context.Context, e *engine, out io.Writer) error {
		records, err := e.List()
		if err != nil {
			return err
		}
		fmt.Fprint(out, output.RenderRegistryTable(records, e.now()))
		return nil
	})
}
