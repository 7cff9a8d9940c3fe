package app

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/nixbrew/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or empty the resolution cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached resolutions",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached resolution",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired cached resolutions",
	Args:  cobra.NoArgs,
	RunE:  runCachePrune,
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePruneCmd)

	RootCmd.AddCommand(cacheCmd)
}

func runCacheList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(_ context.Context, e *engine, out io.Writer) error {
		c, err := e.requireCache()
		if err != nil {
			return err
		}
		entries, err := c.Entries()
		if err != nil {
			return err
		}
		fmt.Fprint(out, output.RenderCacheTable(entries, e.now()))
		return nil
	})
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(_ context.Context, e *engine, out io.Writer) error {
		c, err := e.requireCache()
		if err != nil {
			return err
		}
		n, err := c.Clear()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Removed %d cached resolution(s)\n", n)
		return nil
	})
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(_ context.Context, e *engine, out io.Writer) error {
		c, err := e.requireCache()
		if err != nil {
			return err
		}
		n, err := c.Prune()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Removed %d expired resolution(s)\n", n)
		return nil
	})
}
