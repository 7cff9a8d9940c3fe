// Package config provides configuration file parsing for nixbrew.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/nixbrew/internal/resolve"
)

const (
	// FileName is the YAML config file inside the config directory.
	FileName = "config.yaml"

	// EnvFileName holds NIXBREW_* overrides loaded before the real environment
	// is consulted. Variables already set in the environment win.
	EnvFileName = "env"
)

// Dir returns the nixbrew config directory, respecting XDG_CONFIG_HOME.
// Defaults to ~/.config/nixbrew if XDG_CONFIG_HOME is not set.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "nixbrew"), nil
}

// Config holds the engine settings.
type Config struct {
	// StateDir holds the registry, the resolution cache and generated flakes.
	StateDir string `yaml:"state_dir"`

	// Resolution settings.
	DefaultChannel string            `yaml:"default_channel"`
	Upstream       string            `yaml:"upstream"`
	Channels       []resolve.Channel `yaml:"channels"`
	TieBreak       string            `yaml:"tie_break"`

	// Remote lookup settings.
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	Retries       int           `yaml:"retries"`
	RetryWait     time.Duration `yaml:"retry_wait"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir:       "~/.nixbrew",
		DefaultChannel: resolve.DefaultChannelLabel,
		Upstream:       resolve.DefaultUpstream,
		Channels:       resolve.DefaultChannels(),
		TieBreak:       string(resolve.TieBreakNewest),
		CacheTTL:       resolve.DefaultTTL,
		LookupTimeout:  resolve.DefaultTimeout,
		Retries:        resolve.DefaultRetryPolicy.Retries,
		RetryWait:      resolve.DefaultRetryPolicy.Wait,
	}
}

// Load builds the configuration from defaults, the optional env file in dir,
// the YAML file at path and finally NIXBREW_* environment variables. An empty
// path means <dir>/config.yaml; a missing default file is not an error.
func Load(dir, path string) (Config, error) {
	cfg := Default()

	envPath := filepath.Join(dir, EnvFileName)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return Config{}, fmt.Errorf("config: failed to load %s: %w", envPath, err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, FileName)
	}
	if err := cfg.mergeFile(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()

	stateDir, err := expandHome(cfg.StateDir)
	if err != nil {
		return Config{}, err
	}
	cfg.StateDir = stateDir

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.StateDir = envStr("NIXBREW_STATE_DIR", c.StateDir)
	c.DefaultChannel = envStr("NIXBREW_DEFAULT_CHANNEL", c.DefaultChannel)
	c.Upstream = envStr("NIXBREW_UPSTREAM", c.Upstream)
	c.TieBreak = envStr("NIXBREW_TIE_BREAK", c.TieBreak)
	c.CacheTTL = envDuration("NIXBREW_CACHE_TTL", c.CacheTTL)
	c.LookupTimeout = envDuration("NIXBREW_LOOKUP_TIMEOUT", c.LookupTimeout)
	c.Retries = envInt("NIXBREW_RETRIES", c.Retries)
	c.RetryWait = envDuration("NIXBREW_RETRY_WAIT", c.RetryWait)
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("config: state_dir is required")
	}
	if c.Upstream == "" {
		return fmt.Errorf("config: upstream is required")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: cache_ttl must be positive")
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("config: lookup_timeout must be positive")
	}
	if c.Retries < 0 {
		return fmt.Errorf("config: retries must not be negative")
	}
	if c.RetryWait < 0 {
		return fmt.Errorf("config: retry_wait must not be negative")
	}
	if _, err := resolve.ParseTieBreak(c.TieBreak); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	channels := c.ChannelList()
	if err := channels.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, ok := channels.Find(c.DefaultChannel); !ok {
		return fmt.Errorf("config: default_channel %q is not a recognized channel", c.DefaultChannel)
	}
	return nil
}

// ChannelList returns the configured channels, or the built-in list when
// none are configured.
func (c Config) ChannelList() resolve.ChannelList {
	if len(c.Channels) == 0 {
		return resolve.ChannelList(resolve.DefaultChannels())
	}
	return resolve.ChannelList(c.Channels)
}

// TieBreakPolicy returns the parsed tie-break policy.
func (c Config) TieBreakPolicy() resolve.TieBreak {
	t, err := resolve.ParseTieBreak(c.TieBreak)
	if err != nil {
		return resolve.TieBreakNewest
	}
	return t
}

// RetryPolicy returns the remote lookup retry settings.
func (c Config) RetryPolicy() resolve.RetryPolicy {
	return resolve.RetryPolicy{Retries: c.Retries, Wait: c.RetryWait}
}

// RegistryPath returns the registry document location.
func (c Config) RegistryPath() string {
	return filepath.Join(c.StateDir, "registry.json")
}

// CachePath returns the resolution cache database location.
func (c Config) CachePath() string {
	return filepath.Join(c.StateDir, "cache.db")
}

// FlakeDir returns the directory holding one generated flake per package.
func (c Config) FlakeDir() string {
	return filepath.Join(c.StateDir, "flakes")
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
