// Package config loads the oseidsim manifest: key-store location, PIN
// policy, log settings, and the listen path for the serve subcommand. The
// card identity is not part of the manifest; internal/keystore keeps it.
// Structured the way sdmconfig/internal/config loads its YAML manifest:
// strict field checking, optional fields as pointers so "absent" and
// "zero value" are distinguishable, paths resolved relative to the
// manifest's own directory.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the oseidsim manifest (spec.md §4.9 PIN policy, supplemented
// store/listen/log settings per SPEC_FULL.md §3).
type Config struct {
	KeyStoreDir string     `yaml:"key_store_dir"`
	Listen      string     `yaml:"listen"`
	PIN         PINConfig  `yaml:"pin"`
	Log         LogConfig  `yaml:"log"`
}

// PINConfig holds the PIN try budget. Load only validates it; new PINs are
// initialized with keystore.DefaultPINMaxTries.
type PINConfig struct {
	MaxTries *int `yaml:"max_tries"`
}

// LogConfig holds the manifest's log settings. Load only validates them;
// oseidsim serve does not read them and always installs the devlog handler.
type LogConfig struct {
	Format *string `yaml:"format"` // "text", "json", or "pretty"
	Level  *string `yaml:"level"`  // "debug", "info", "warn", "error"
}

// Load reads and validates a manifest at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the required fields and value ranges of the manifest.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.KeyStoreDir) == "" {
		return fmt.Errorf("config.key_store_dir is required")
	}
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("config.listen is required")
	}
	if c.PIN.MaxTries != nil && *c.PIN.MaxTries <= 0 {
		return fmt.Errorf("config.pin.max_tries must be > 0")
	}
	if c.Log.Format != nil {
		switch *c.Log.Format {
		case "text", "json", "pretty":
		default:
			return fmt.Errorf("config.log.format must be text, json, or pretty, got %q", *c.Log.Format)
		}
	}
	return nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.KeyStoreDir = resolvePath(configDir, c.KeyStoreDir)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

// PINMaxTries returns the configured PIN try budget, or keystore's default
// when the manifest leaves it unset.
func (c *Config) PINMaxTries(fallback int) int {
	if c.PIN.MaxTries == nil {
		return fallback
	}
	return *c.PIN.MaxTries
}

// LogFormat returns the configured handler selector, defaulting to "pretty".
func (c *Config) LogFormat() string {
	if c.Log.Format == nil {
		return "pretty"
	}
	return *c.Log.Format
}
