package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.BusName != def.BusName {
		t.Errorf("expected default bus name %q, got %q", def.BusName, cfg.BusName)
	}
	if cfg.Listen != def.Listen {
		t.Errorf("expected default listen %q, got %q", def.Listen, cfg.Listen)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "busName: can1\nlisten: 0.0.0.0:9000\nverbose: true\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BusName != "can1" {
		t.Errorf("expected bus name %q, got %q", "can1", cfg.BusName)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("expected listen %q, got %q", "0.0.0.0:9000", cfg.Listen)
	}
	if !cfg.Verbose {
		t.Error("expected verbose=true")
	}
	// Unset keys keep their defaults.
	if cfg.ScenarioDir != DefaultConfig().ScenarioDir {
		t.Errorf("expected default scenario dir, got %q", cfg.ScenarioDir)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "busName: [not\n  closed")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid YAML (falls back to default), got: %v", err)
	}
	if cfg.BusName != DefaultConfig().BusName {
		t.Errorf("expected default bus name, got %q", cfg.BusName)
	}
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	want := DefaultConfig()
	want.BusName = "can7"
	if err := Save(&want, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.BusName != "can7" {
		t.Errorf("round-trip lost bus name: %q", got.BusName)
	}
}
