package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidConfigAndResolveRelativePaths(t *testing.T) {
	tmp := t.TempDir()
	keyStoreDir := filepath.Join(tmp, "store")

	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
key_store_dir: "store"
listen: "unix:///tmp/oseidsim.sock"
pin:
  max_tries: 5
log:
  format: "json"
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.KeyStoreDir != keyStoreDir {
		t.Fatalf("expected resolved key store dir %q, got %q", keyStoreDir, cfg.KeyStoreDir)
	}
	if got := cfg.PINMaxTries(3); got != 5 {
		t.Fatalf("expected PINMaxTries 5, got %d", got)
	}
	if got := cfg.LogFormat(); got != "json" {
		t.Fatalf("expected log format json, got %q", got)
	}
}

func TestLoadMinimalConfigDefaultsLogFormat(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
key_store_dir: "store"
listen: "unix:///tmp/oseidsim.sock"
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if got := cfg.LogFormat(); got != "pretty" {
		t.Fatalf("expected default log format pretty, got %q", got)
	}
	if got := cfg.PINMaxTries(3); got != 3 {
		t.Fatalf("expected fallback PINMaxTries 3, got %d", got)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	cfgYAML := `
key_store_dir: "store"
listen: "unix:///tmp/oseidsim.sock"
bogus_field: true
`
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for unknown field, got nil")
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("listen: \"unix:///tmp/x.sock\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for missing key_store_dir, got nil")
	}
}
