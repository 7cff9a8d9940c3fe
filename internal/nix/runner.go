// Package nix wraps the nix command line: profile changes, flake evaluation
// and search. Every call enables the nix-command and flakes features.
package nix

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// baseArgs are prepended to every invocation.
var baseArgs = []string{"--extra-experimental-features", "nix-command flakes"}

// Runner executes nix subcommands.
type Runner interface {
	// Output runs nix and returns its stdout. Stderr is captured into the
	// returned error on failure.
	Output(ctx context.Context, args ...string) ([]byte, error)

	// Stream runs nix with its output forwarded to the user.
	Stream(ctx context.Context, args ...string) error
}

// CommandError describes a failed nix invocation.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("nix %s failed: %v", strings.Join(e.Args, " "), e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += " (stderr: " + stderr + ")"
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs the real nix binary.
type ExecRunner struct {
	Binary string
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner returns a runner for the nix binary on PATH that streams to the
// process's stdout and stderr.
func NewRunner() *ExecRunner {
	return &ExecRunner{Binary: "nix", Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r *ExecRunner) command(ctx context.Context, args []string) *exec.Cmd {
	full := make([]string, 0, len(baseArgs)+len(args))
	full = append(full, baseArgs...)
	full = append(full, args...)
	return exec.CommandContext(ctx, r.Binary, full...)
}

func (r *ExecRunner) Output(ctx context.Context, args ...string) ([]byte, error) {
	cmd := r.command(ctx, args)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, &CommandError{Args: args, Stderr: stderr.String(), Err: contextErr(ctx, err)}
	}
	return out, nil
}

func (r *ExecRunner) Stream(ctx context.Context, args ...string) error {
	cmd := r.command(ctx, args)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Run(); err != nil {
		return &CommandError{Args: args, Err: contextErr(ctx, err)}
	}
	return nil
}

// contextErr prefers the context's error over the "signal: killed" reported
// when exec.CommandContext stops the process.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("exit status %d", exitErr.ExitCode())
	}
	return err
}

// Version returns the output of `nix --version`, e.g. "nix (Nix) 2.24.9".
func Version(ctx context.Context, r Runner) (string, error) {
	out, err := r.Output(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
