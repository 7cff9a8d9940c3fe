// Package shell locates the nix profile's bin directory and writes the PATH
// entry for it into the user's shell configuration.
package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// marker identifies the block nixbrew appends to a shell config file.
const marker = "# nixbrew profile"

// ProfileBinDir returns the bin directory of the user's default nix profile.
// Newer nix keeps the profile under $XDG_STATE_HOME/nix/profile; older
// installs use ~/.nix-profile. The first one that exists wins, falling back
// to ~/.nix-profile/bin.
func ProfileBinDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}

	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = filepath.Join(home, ".local", "state")
	}

	legacy := filepath.Join(home, ".nix-profile", "bin")
	for _, dir := range []string{legacy, filepath.Join(stateHome, "nix", "profile", "bin")} {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}
	return legacy, nil
}

// OnPath reports whether dir is an entry of $PATH.
func OnPath(dir string) bool {
	for _, entry := range filepath.SplitList(os.Getenv("PATH")) {
		if filepath.Clean(entry) == filepath.Clean(dir) {
			return true
		}
	}
	return false
}

// ConfigFile returns the login shell config file for $SHELL and whether it
// uses fish syntax.
func ConfigFile(home string) (string, bool) {
	switch filepath.Base(os.Getenv("SHELL")) {
	case "zsh":
		return filepath.Join(home, ".zprofile"), false
	case "bash":
		return filepath.Join(home, ".bash_profile"), false
	case "fish":
		return filepath.Join(home, ".config", "fish", "conf.d", "nixbrew.fish"), true
	default:
		return filepath.Join(home, ".profile"), false
	}
}

// EnsurePathEntry checks whether dir is on PATH and, if not, appends the
// export line to the appropriate shell config file.
// Returns (added bool, configFile string, err error).
// added=false means it was already on PATH or already configured.
func EnsurePathEntry(dir string) (added bool, configFile string, err error) {
	if OnPath(dir) {
		return false, "", nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return false, "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	configPath, isFish := ConfigFile(home)

	// Ensure the parent directory exists (needed for fish conf.d path).
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return false, "", fmt.Errorf("cannot create config directory %s: %w", filepath.Dir(configPath), err)
	}

	if existing, err := os.ReadFile(configPath); err == nil && strings.Contains(string(existing), marker) {
		return false, configPath, nil
	}

	var line string
	if isFish {
		line = fmt.Sprintf("\n%s\nfish_add_path %s\n", marker, dir)
	} else {
		line = fmt.Sprintf("\n%s\nexport PATH=%q:$PATH\n", marker, dir)
	}

	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return false, "", fmt.Errorf("cannot open config file %s: %w", configPath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprint(f, line); err != nil {
		return false, "", fmt.Errorf("cannot write to config file %s: %w", configPath, err)
	}
	return true, configPath, nil
}
