package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "neurolint" {
		t.Errorf("expected Name=neurolint, got %s", cfg.Name)
	}
	if cfg.Pipeline.Concurrency != 4 {
		t.Errorf("expected Concurrency=4, got %d", cfg.Pipeline.Concurrency)
	}
	if !cfg.Store.Enabled {
		t.Error("expected store enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("NEUROLINT_DB", "")
	t.Setenv("NEUROLINT_LOG_LEVEL", "")
	t.Setenv("NEUROLINT_CONCURRENCY", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Pipeline.Layers = []int{2, 4}
	cfg.Adaptive.Rules = []AdaptiveRule{{Name: "legacy-router", Pattern: `next/router`, Replace: `next/navigation`}}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Pipeline.Layers) != 2 || loaded.Pipeline.Layers[1] != 4 {
		t.Errorf("expected layers [2 4], got %v", loaded.Pipeline.Layers)
	}
	if len(loaded.Adaptive.Rules) != 1 || loaded.Adaptive.Rules[0].Replace != "next/navigation" {
		t.Errorf("adaptive rules not round-tripped: %+v", loaded.Adaptive.Rules)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "neurolint" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_RejectsOutOfRangeLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  layers: [1, 9]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for layer 9")
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pipeline: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetDebounce(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetDebounce(); got != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", got)
	}
	cfg.Watch.Debounce = "2s"
	if got := cfg.GetDebounce(); got != 2*time.Second {
		t.Errorf("expected 2s, got %v", got)
	}
	cfg.Watch.Debounce = "soon"
	if got := cfg.GetDebounce(); got != 500*time.Millisecond {
		t.Errorf("expected fallback 500ms, got %v", got)
	}
}

func TestGetConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.Concurrency = 0
	if got := cfg.GetConcurrency(); got != 1 {
		t.Errorf("expected floor of 1, got %d", got)
	}
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	lc := LoggingConfig{}
	if lc.IsCategoryEnabled("pipeline") {
		t.Error("categories are disabled outside debug mode")
	}
	lc.DebugMode = true
	lc.Categories = map[string]bool{"store": false}
	if lc.IsCategoryEnabled("store") {
		t.Error("store should be disabled")
	}
	if !lc.IsCategoryEnabled("pipeline") {
		t.Error("unlisted category should default to enabled")
	}
	lc.Format = "json"
	if s := lc.Settings(); !s.JSONFormat || !s.DebugMode {
		t.Errorf("unexpected settings: %+v", s)
	}
}
