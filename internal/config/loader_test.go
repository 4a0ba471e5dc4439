package config

import (
	"os"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.toml")
	if err != nil {
		t.Fatalf("create temp config: %v", err)
	}
	if _, err := f.WriteString(contents); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp config: %v", err)
	}
	return f.Name()
}

func TestLoadMergesFileOnTopOfDefaults(t *testing.T) {
	path := writeTempConfig(t, `
fixed_size = 0.25
max_levels = 4

[spread]
min = 0.002
max = 0.02
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.FixedSize != 0.25 {
		t.Errorf("FixedSize = %v, want 0.25", cfg.FixedSize)
	}
	if cfg.MaxLevels != 4 {
		t.Errorf("MaxLevels = %v, want 4", cfg.MaxLevels)
	}
	if cfg.Spread.Min != 0.002 || cfg.Spread.Max != 0.02 {
		t.Errorf("unexpected spread config: %+v", cfg.Spread)
	}
	// fields left untouched by the file should retain their defaults
	if cfg.QuantityMode != QuantityModeFixed {
		t.Errorf("QuantityMode = %v, want default %v", cfg.QuantityMode, QuantityModeFixed)
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.toml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestApplyEnvOverridesRespectsMMPrefixedVars(t *testing.T) {
	path := writeTempConfig(t, "")

	t.Setenv("MM_FIXED_SIZE", "0.5")
	t.Setenv("MM_MAX_LEVELS", "7")
	t.Setenv("MM_INVENTORY_SKEW_ENABLED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.FixedSize != 0.5 {
		t.Errorf("FixedSize = %v, want 0.5 from env override", cfg.FixedSize)
	}
	if cfg.MaxLevels != 7 {
		t.Errorf("MaxLevels = %v, want 7 from env override", cfg.MaxLevels)
	}
	if cfg.InventorySkewEnabled {
		t.Error("expected InventorySkewEnabled to be overridden to false")
	}
}

func TestApplyEnvOverridesLogLevelBareAliasWins(t *testing.T) {
	path := writeTempConfig(t, "")
	t.Setenv("MM_LOG_LEVEL", "debug")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want %q (bare LOG_LEVEL applied after MM_LOG_LEVEL)", cfg.LogLevel, "error")
	}
}

func TestApplyEnvOverridesIgnoresUnsetVars(t *testing.T) {
	path := writeTempConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defaults := Defaults()
	if cfg.FixedSize != defaults.FixedSize {
		t.Errorf("FixedSize = %v, want default %v when no env var is set", cfg.FixedSize, defaults.FixedSize)
	}
}
