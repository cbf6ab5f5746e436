package coreconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsFillProfileBudgets(t *testing.T) {
	cfg := Defaults()
	if cfg.MaxStepsFor("worker") != 12 {
		t.Fatalf("worker budget = %d, want 12", cfg.MaxStepsFor("worker"))
	}
	if cfg.MaxStepsFor("conductor") != 3 {
		t.Fatalf("conductor budget = %d, want 3", cfg.MaxStepsFor("conductor"))
	}
	if cfg.MaxStepsFor("unknown-profile") != 0 {
		t.Fatalf("unknown profile should default to 0, got %d", cfg.MaxStepsFor("unknown-profile"))
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	yaml := "event_store:\n  database_url: postgres://localhost/choiros\nharness:\n  default_max_steps:\n    worker: 20\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EventStore.DatabaseURL != "postgres://localhost/choiros" {
		t.Fatalf("database_url = %q", cfg.EventStore.DatabaseURL)
	}
	if cfg.MaxStepsFor("worker") != 20 {
		t.Fatalf("worker budget override = %d, want 20", cfg.MaxStepsFor("worker"))
	}
	if cfg.EventStore.QueryLimitMax != 1000 {
		t.Fatalf("query_limit_max default lost: %d", cfg.EventStore.QueryLimitMax)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.EventStore.QueryLimitMax != 1000 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}
