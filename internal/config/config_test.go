package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8080" || cfg.LogDir != "logs" {
		t.Fatalf("addr/logdir wrong: %+v", cfg)
	}
	if cfg.Store != "sqlite" || cfg.SQLitePath != "data/uplite.db" {
		t.Fatalf("store defaults wrong: %+v", cfg)
	}
	if cfg.CheckInterval != 60*time.Second || cfg.MaxConcurrentChecks != 8 {
		t.Fatalf("monitor defaults wrong: %+v", cfg)
	}
	if cfg.Retention != 168*time.Hour || cfg.SweepSchedule != "@hourly" {
		t.Fatalf("retention defaults wrong: %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UPLITE_ADDR", ":9090")
	t.Setenv("UPLITE_STORE", "memory")
	t.Setenv("UPLITE_CHECK_INTERVAL", "30s")
	t.Setenv("UPLITE_MAX_CONCURRENT_CHECKS", "3")
	t.Setenv("UPLITE_RETENTION", "24h")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.Store != "memory" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CheckInterval != 30*time.Second || cfg.MaxConcurrentChecks != 3 || cfg.Retention != 24*time.Hour {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uplite.yaml")
	body := "addr: \":7070\"\nstore: memory\ncheck_interval: 15s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("UPLITE_ADDR", ":6060")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Environment wins over the file.
	if cfg.Addr != ":6060" {
		t.Fatalf("env did not override file: %+v", cfg)
	}
	if cfg.Store != "memory" || cfg.CheckInterval != 15*time.Second {
		t.Fatalf("file values lost: %+v", cfg)
	}
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("UPLITE_STORE", "mssql")
	if _, err := Load(""); err == nil {
		t.Fatalf("want error for unknown store")
	}

	t.Setenv("UPLITE_STORE", "postgres")
	t.Setenv("UPLITE_DATABASE_URL", "")
	if _, err := Load(""); err == nil {
		t.Fatalf("want error for postgres without DSN")
	}
}
