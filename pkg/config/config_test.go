package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Input.Prefix != "raw-data" {
		t.Errorf("Expected input prefix raw-data, got %q", cfg.Input.Prefix)
	}
	if cfg.Input.Suffix != ".csv" {
		t.Errorf("Expected input suffix .csv, got %q", cfg.Input.Suffix)
	}
	if cfg.Output.Prefix != "reports" {
		t.Errorf("Expected output prefix reports, got %q", cfg.Output.Prefix)
	}
	if cfg.Tracking.Namespace != "processed_files" {
		t.Errorf("Expected namespace processed_files, got %q", cfg.Tracking.Namespace)
	}
	if cfg.Tracking.PendingTTL != 15*time.Minute {
		t.Errorf("Expected 15m pending TTL, got %v", cfg.Tracking.PendingTTL)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
}

func TestManager_FileMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
input:
  container: my-bucket
  prefix: incoming
tracking:
  backend: local
server:
  port: 9000
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	m := NewManager()
	if err := m.loadFile(path); err != nil {
		t.Fatalf("loadFile failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Input.Container != "my-bucket" {
		t.Errorf("Expected container my-bucket, got %q", cfg.Input.Container)
	}
	if cfg.Input.Prefix != "incoming" {
		t.Errorf("Expected prefix incoming, got %q", cfg.Input.Prefix)
	}
	if cfg.Tracking.Backend != "local" {
		t.Errorf("Expected backend local, got %q", cfg.Tracking.Backend)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}

	// Untouched keys keep their defaults.
	if cfg.Input.Suffix != ".csv" {
		t.Errorf("Expected default suffix, got %q", cfg.Input.Suffix)
	}
	if cfg.Output.Prefix != "reports" {
		t.Errorf("Expected default output prefix, got %q", cfg.Output.Prefix)
	}
}

func TestManager_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".reportflow.yaml")
	if err := os.WriteFile(path, []byte("input: [not a mapping"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	t.Chdir(dir)

	m := NewManager()
	if err := m.Load(); err == nil {
		t.Fatal("Expected error for malformed config file")
	}

	// A broken file must not corrupt the defaults.
	if m.Get().Server.Port != 8080 {
		t.Errorf("Expected default port after failed load, got %d", m.Get().Server.Port)
	}
}

func TestManager_EnvOverrides(t *testing.T) {
	t.Setenv("REPORTFLOW_INPUT_CONTAINER", "env-bucket")
	t.Setenv("REPORTFLOW_TRACKING_BACKEND", "memory")
	t.Setenv("REPORTFLOW_PORT", "7070")
	t.Setenv("REPORTFLOW_OTLP_ENDPOINT", "collector:4317")

	m := NewManager()
	m.loadEnv()

	cfg := m.Get()
	if cfg.Input.Container != "env-bucket" {
		t.Errorf("Expected env-bucket, got %q", cfg.Input.Container)
	}
	if cfg.Tracking.Backend != "memory" {
		t.Errorf("Expected memory backend, got %q", cfg.Tracking.Backend)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("Expected telemetry enabled via env, got %+v", cfg.Telemetry)
	}
}

func TestManager_InvalidPort(t *testing.T) {
	t.Setenv("REPORTFLOW_PORT", "not-a-port")

	m := NewManager()
	m.loadEnv()

	if m.Get().Server.Port != 8080 {
		t.Errorf("Invalid port must keep the default, got %d", m.Get().Server.Port)
	}
}

func TestParseLevel(t *testing.T) {
	if _, err := parseLevel("debug"); err != nil {
		t.Errorf("parseLevel(debug) failed: %v", err)
	}
	if _, err := parseLevel(""); err != nil {
		t.Errorf("parseLevel of empty string must default: %v", err)
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}
