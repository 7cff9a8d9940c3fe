package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeAliases(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "aliases"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoadAliases_FileNotFound(t *testing.T) {
	cfg, err := LoadAliases(t.TempDir())
	if err != nil {
		t.Fatalf("LoadAliases() returned error for missing file: %v", err)
	}
	if cfg == nil {
		t.Fatal("LoadAliases() returned nil config")
	}
	if len(cfg.Aliases) != 0 {
		t.Errorf("expected empty Aliases map, got %v", cfg.Aliases)
	}
}

func TestLoadAliases_Parsing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
	}{
		{
			name:    "simple lines",
			content: "rg=ripgrep\npy=python3\n",
			want:    map[string]string{"rg": "ripgrep", "py": "python3"},
		},
		{
			name: "comments and blank lines",
			content: `# nixbrew aliases
# Format: alias=attribute


k=kubectl
`,
			want: map[string]string{"k": "kubectl"},
		},
		{
			name: "invalid lines skipped",
			content: `noequalssign
=missingalias
 =
requests=python3Packages.requests
tf = opentofu
`,
			want: map[string]string{"requests": "python3Packages.requests", "tf": "opentofu"},
		},
		{
			name:    "later line wins",
			content: "vi=vim\nvi=neovim\n",
			want:    map[string]string{"vi": "neovim"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeAliases(t, dir, tt.content)

			cfg, err := LoadAliases(dir)
			if err != nil {
				t.Fatalf("LoadAliases() error: %v", err)
			}
			if len(cfg.Aliases) != len(tt.want) {
				t.Errorf("got %d aliases, want %d: %v", len(cfg.Aliases), len(tt.want), cfg.Aliases)
			}
			for alias, pkg := range tt.want {
				if got := cfg.Aliases[alias]; got != pkg {
					t.Errorf("Aliases[%q] = %q, want %q", alias, got, pkg)
				}
			}
		})
	}
}

func TestAliasConfig_Resolve(t *testing.T) {
	cfg := &AliasConfig{Aliases: map[string]string{"rg": "ripgrep", "grep": "rg"}}

	tests := []struct {
		in, want string
	}{
		{"rg", "ripgrep"},
		{"fd", "fd"},
		{"grep", "rg"}, // not recursive
	}
	for _, tt := range tests {
		if got := cfg.Resolve(tt.in); got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	var nilCfg *AliasConfig
	if got := nilCfg.Resolve("jq"); got != "jq" {
		t.Errorf("nil config Resolve() = %q, want %q", got, "jq")
	}
}
