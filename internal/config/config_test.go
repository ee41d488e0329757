package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Metrics.IntervalMs != 60_000 {
		t.Errorf("default interval = %d, want 60000", cfg.Metrics.IntervalMs)
	}
	if cfg.SnapshotRetentionMax != 30 {
		t.Errorf("default snapshot retention = %d, want 30", cfg.SnapshotRetentionMax)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"dataDir":"/tmp/custom","metrics":{"intervalMs":5000,"retentionDays":3,"enabled":true}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/tmp/custom" {
		t.Errorf("dataDir = %q, want /tmp/custom", cfg.DataDir)
	}
	if cfg.Metrics.IntervalMs != 5000 {
		t.Errorf("intervalMs = %d, want 5000", cfg.Metrics.IntervalMs)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AIOPS_DATA_DIR", "/tmp/env-dir")
	t.Setenv("AIOPS_METRICS_INTERVAL_MS", "15000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DataDir != "/tmp/env-dir" {
		t.Errorf("dataDir = %q, want /tmp/env-dir", cfg.DataDir)
	}
	if cfg.Metrics.IntervalMs != 15000 {
		t.Errorf("intervalMs = %d, want 15000", cfg.Metrics.IntervalMs)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"dataDir":""}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for empty dataDir")
	}
}

func TestPathJoinsDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "data/ai-ops"
	got := cfg.Path("audit", "2026-07-30.json")
	want := filepath.Join("data/ai-ops", "audit", "2026-07-30.json")
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}
