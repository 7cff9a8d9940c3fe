package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/nixbrew/internal/config"
)

var (
	stateDir   string
	configPath string

	// RootCmd is the root command for nixbrew
	RootCmd = &cobra.Command{
		Use:   "nixbrew",
		Short: "Homebrew-style package management on top of Nix profiles",
		Long: `nixbrew installs packages into your Nix profile using Homebrew vocabulary.
Versions can be requested as a semantic version (14.1.0), a channel
label (23.11, unstable) or a nixpkgs commit. Every change is recorded so
a package can be rolled back to any version it previously had.

Examples:
  # Install the latest ripgrep from the default channel
  nixbrew install ripgrep

  # Install a specific version
  nixbrew install ripgrep 13.0.0

  # Install from a channel or a commit
  nixbrew install nodejs 23.11
  nixbrew install jq cb82756ecc37

  # Show what is installed and what happened to a package
  nixbrew list
  nixbrew history ripgrep

  # Go back to an earlier version
  nixbrew rollback ripgrep 13.0.0`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "nixbrew: Homebrew-style package management on top of Nix profiles")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Run 'nixbrew install <package>' to install something.")
			fmt.Fprintln(out, "Run 'nixbrew --help' for the full reference.")
			return nil
		},
	}
)

func init() {
	// Global flags
	RootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "state directory (default: ~/.nixbrew or $NIXBREW_STATE_DIR)")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/nixbrew/config.yaml)")
	addLogFlags(RootCmd.PersistentFlags())

	// Enable cobra's built-in suggestion feature for unknown subcommands
	RootCmd.SuggestionsMinimumDistance = 2
}

// Execute runs the root command. Interrupts cancel in-flight lookups and
// nix invocations through the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RootCmd.ExecuteContext(ctx)
}

// openEngine builds the engine for a command. Tests replace it.
var openEngine = func(cmd *cobra.Command) (*engine, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(dir, configPath)
	if err != nil {
		return nil, err
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}

	aliases, err := config.LoadAliases(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load aliases: %w", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, aliases, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// withEngine opens the engine, runs fn and closes the engine.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine, out io.Writer) error) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(cmd.Context(), e, e.out)
}

// optionalArg returns args[i] or nil.
func optionalArg(args []string, i int) *string {
	if len(args) <= i {
		return nil
	}
	return &args[i]
}
