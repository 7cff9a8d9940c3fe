package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// AliasConfig holds the alias-to-package mappings declared by the user.
// Each key is the name typed on the command line and the value is the
// nixpkgs attribute it stands for, e.g. "rg=ripgrep" or "py=python3".
type AliasConfig struct {
	Aliases map[string]string
}

// LoadAliases reads the aliases file at {dir}/aliases and returns the parsed
// config. If the file does not exist, an empty config is returned without an
// error. Invalid or malformed lines are silently skipped.
func LoadAliases(dir string) (*AliasConfig, error) {
	cfg := &AliasConfig{
		Aliases: make(map[string]string),
	}

	path := filepath.Join(dir, "aliases")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}

		alias := strings.TrimSpace(line[:idx])
		pkg := strings.TrimSpace(line[idx+1:])
		if alias == "" || pkg == "" {
			continue
		}

		cfg.Aliases[alias] = pkg
	}

	if err := scanner.Err(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Resolve returns the package an alias stands for, or name itself. Aliases
// are not expanded recursively.
func (c *AliasConfig) Resolve(name string) string {
	if c == nil {
		return name
	}
	if pkg, ok := c.Aliases[name]; ok {
		return pkg
	}
	return name
}
