package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/nixbrew/internal/cache"
	"github.com/blackwell-systems/nixbrew/internal/config"
	"github.com/blackwell-systems/nixbrew/internal/nix"
	"github.com/blackwell-systems/nixbrew/internal/registry"
	"github.com/blackwell-systems/nixbrew/internal/shell"
)

var doctorFlagFixPath bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues and check system health",
	Long: `Runs diagnostic checks on your nixbrew installation.

Checks:
  • nix is installed and supports flakes
  • State directory is writable
  • Registry is readable and valid
  • Resolution cache can be opened
  • Registry and nix profile agree
  • The profile's bin directory is on PATH`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFlagFixPath, "fix-path", false, "Add the nix profile bin directory to your shell config")

	RootCmd.AddCommand(doctorCmd)
}

// doctorEnv holds what the checks talk to. Tests substitute the runner and
// lookPath.
type doctorEnv struct {
	cfg      config.Config
	runner   nix.Runner
	binary   string
	lookPath func(string) (string, error)
	fixPath  bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Running nixbrew diagnostics...")
	fmt.Fprintln(out)

	dir, err := config.Dir()
	if err == nil {
		var cfg config.Config
		cfg, err = config.Load(dir, configPath)
		if err == nil {
			if stateDir != "" {
				cfg.StateDir = stateDir
			}
			runner := nix.NewRunner()
			critical, warnings := diagnose(cmd.Context(), out, doctorEnv{
				cfg:      cfg,
				runner:   runner,
				binary:   runner.Binary,
				lookPath: exec.LookPath,
				fixPath:  doctorFlagFixPath,
			})
			return reportDoctor(out, critical, warnings)
		}
	}

	fmt.Fprintln(out, "✗ Configuration error:", err)
	fmt.Fprintln(out, "  Action: Fix or remove the config file and NIXBREW_* variables")
	return reportDoctor(out, 1, 0)
}

// diagnose runs every check and returns the number of critical issues and
// warnings found.
func diagnose(ctx context.Context, out io.Writer, env doctorEnv) (criticalIssues, warningIssues int) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Check 1: nix binary
	nixOK := false
	if path, err := env.lookPath(env.binary); err != nil {
		fmt.Fprintln(out, "✗ nix not found on PATH")
		fmt.Fprintln(out, "  Action: Install nix from https://nixos.org/download")
		criticalIssues++
	} else if version, err := nix.Version(ctx, env.runner); err != nil {
		fmt.Fprintln(out, "✗ nix is installed but failed to run:", err)
		criticalIssues++
	} else {
		fmt.Fprintf(out, "✓ %s (%s)\n", version, path)
		nixOK = true
	}

	// Check 2: state directory writable
	if err := checkWritable(env.cfg.StateDir); err != nil {
		fmt.Fprintln(out, "✗ State directory not writable:", err)
		fmt.Fprintln(out, "  Action: Fix permissions or pass --state-dir")
		criticalIssues++
	} else {
		fmt.Fprintln(out, "✓ State directory:", env.cfg.StateDir)
	}

	// Check 3: registry readable and valid
	records, regErr := registry.New(env.cfg.RegistryPath()).All()
	switch {
	case errors.Is(regErr, registry.ErrRegistryCorrupt):
		fmt.Fprintln(out, "✗", regErr)
		criticalIssues++
	case regErr != nil:
		fmt.Fprintln(out, "✗ Cannot read registry:", regErr)
		criticalIssues++
	default:
		fmt.Fprintf(out, "✓ Registry tracks %d package(s)\n", len(records))
	}

	// Check 4: resolution cache, warning only
	if c, err := cache.Open(env.cfg.CachePath()); err != nil {
		fmt.Fprintln(out, "⚠ Resolution cache unavailable, lookups will not be cached:", err)
		warningIssues++
	} else {
		entries, err := c.Entries()
		c.Close()
		if err != nil {
			fmt.Fprintln(out, "⚠ Cannot read resolution cache:", err)
			fmt.Fprintln(out, "  Action: Run 'nixbrew cache clear'")
			warningIssues++
		} else {
			fmt.Fprintf(out, "✓ Resolution cache holds %d entry(ies)\n", len(entries))
		}
	}

	// Check 5: registry and profile agree, warning only
	if nixOK && regErr == nil && len(records) > 0 {
		elements, err := nix.NewProfile(env.runner).List(ctx)
		if err != nil {
			fmt.Fprintln(out, "⚠ Cannot list nix profile:", err)
			warningIssues++
		} else {
			inProfile := make(map[string]bool, len(elements))
			for _, e := range elements {
				inProfile[e.Package()] = true
			}
			missing := 0
			for _, rec := range records {
				if !inProfile[rec.Name] {
					fmt.Fprintf(out, "⚠ %s is recorded but not in the nix profile\n", rec.Name)
					missing++
				}
			}
			if missing > 0 {
				fmt.Fprintln(out, "  Action: Run 'nixbrew install <package>' or 'nixbrew uninstall <package>'")
				warningIssues++
			} else {
				fmt.Fprintln(out, "✓ Registry matches the nix profile")
			}
		}
	}

	// Check 6: profile bin directory on PATH, warning only
	binDir, err := shell.ProfileBinDir()
	switch {
	case err != nil:
		fmt.Fprintln(out, "⚠ Cannot locate the nix profile:", err)
		warningIssues++
	case shell.OnPath(binDir):
		fmt.Fprintln(out, "✓ Profile bin directory on PATH:", binDir)
	case env.fixPath:
		added, file, err := shell.EnsurePathEntry(binDir)
		switch {
		case err != nil:
			fmt.Fprintln(out, "✗ Cannot update shell config:", err)
			criticalIssues++
		case added:
			fmt.Fprintf(out, "✓ Added %s to PATH in %s (restart your shell)\n", binDir, file)
		default:
			fmt.Fprintf(out, "⚠ %s already configured in %s (restart your shell)\n", binDir, file)
			warningIssues++
		}
	default:
		fmt.Fprintln(out, "⚠ Profile bin directory not on PATH:", binDir)
		fmt.Fprintln(out, "  Action: Run 'nixbrew doctor --fix-path'")
		warningIssues++
	}

	return criticalIssues, warningIssues
}

func reportDoctor(out io.Writer, criticalIssues, warningIssues int) error {
	fmt.Fprintln(out)
	switch {
	case criticalIssues > 0:
		fmt.Fprintf(out, "Found %d critical issue(s) and %d warning(s).\n", criticalIssues, warningIssues)
		return fmt.Errorf("diagnostics failed")
	case warningIssues > 0:
		fmt.Fprintf(out, "Found %d warning(s). nixbrew is functional but not fully configured.\n", warningIssues)
	default:
		fmt.Fprintln(out, "✓ All checks passed!")
	}
	return nil
}

// checkWritable creates dir if needed and proves a file can be created in it.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
