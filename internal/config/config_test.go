package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FEEDBACKER_DATABASE_URL", "postgres://localhost/feedbacker")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Workers != 4 {
		t.Errorf("got workers %d, want 4", cfg.Workers)
	}
	if cfg.FetchTimeout != 2*time.Minute {
		t.Errorf("got fetch timeout %v, want 2m", cfg.FetchTimeout)
	}
	if cfg.Runtime != "exec" {
		t.Errorf("got runtime %q, want exec", cfg.Runtime)
	}
	if len(cfg.DefaultAnalyses) != 1 || cfg.DefaultAnalyses[0] != "secrets" {
		t.Errorf("unexpected default analyses: %v", cfg.DefaultAnalyses)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error when database_url is unset")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FEEDBACKER_DATABASE_URL", "postgres://localhost/feedbacker")
	t.Setenv("FEEDBACKER_WORKERS", "9")
	t.Setenv("FEEDBACKER_ANALYSIS_TIMEOUT", "30s")
	t.Setenv("FEEDBACKER_RUNTIME", "docker")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workers != 9 {
		t.Errorf("got workers %d, want 9", cfg.Workers)
	}
	if cfg.AnalysisTimeout != 30*time.Second {
		t.Errorf("got analysis timeout %v, want 30s", cfg.AnalysisTimeout)
	}
	if cfg.Runtime != "docker" {
		t.Errorf("got runtime %q, want docker", cfg.Runtime)
	}
}

func TestLoad_InvalidRuntime(t *testing.T) {
	t.Setenv("FEEDBACKER_DATABASE_URL", "postgres://localhost/feedbacker")
	t.Setenv("FEEDBACKER_RUNTIME", "firecracker")

	if _, err := Load(""); err == nil {
		t.Error("expected error for unknown runtime")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feedbacker.yaml")
	content := "database_url: postgres://localhost/feedbacker\nworkers: 2\nqueue_capacity: 8\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workers != 2 || cfg.QueueCapacity != 8 {
		t.Errorf("file values not applied: workers=%d capacity=%d", cfg.Workers, cfg.QueueCapacity)
	}
}
