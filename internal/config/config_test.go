package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoad_AllFields verifies that all config fields are parsed correctly from TOML.
func TestLoad_AllFields(t *testing.T) {
	content := `
min_port = 9000
max_port = 9020
idle_timeout_sec = 45
handoff_wait_sec = 10
worker_log = "/var/log/voxbridge.log"
call_db = "/var/lib/voxbridge/calls.db"
run_dir = "/run/voxbridge"
log_level = "debug"
host = "ivr.example.com"
`
	tmpFile := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(tmpFile, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.MinPort != 9000 {
		t.Errorf("MinPort = %d, want %d", cfg.MinPort, 9000)
	}
	if cfg.MaxPort != 9020 {
		t.Errorf("MaxPort = %d, want %d", cfg.MaxPort, 9020)
	}
	if cfg.IdleTimeoutSec != 45 {
		t.Errorf("IdleTimeoutSec = %d, want %d", cfg.IdleTimeoutSec, 45)
	}
	if cfg.HandoffWaitSec != 10 {
		t.Errorf("HandoffWaitSec = %d, want %d", cfg.HandoffWaitSec, 10)
	}
	if cfg.WorkerLog != "/var/log/voxbridge.log" {
		t.Errorf("WorkerLog = %q, want %q", cfg.WorkerLog, "/var/log/voxbridge.log")
	}
	if cfg.CallDB != "/var/lib/voxbridge/calls.db" {
		t.Errorf("CallDB = %q, want %q", cfg.CallDB, "/var/lib/voxbridge/calls.db")
	}
	if cfg.RunDir != "/run/voxbridge" {
		t.Errorf("RunDir = %q, want %q", cfg.RunDir, "/run/voxbridge")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.Host != "ivr.example.com" {
		t.Errorf("Host = %q, want %q", cfg.Host, "ivr.example.com")
	}
}

// TestLoad_MissingExplicitPath verifies an explicit nonexistent path errors.
func TestLoad_MissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("Load() with missing explicit path: want error, got nil")
	}
}

// TestLoad_ParseError verifies malformed TOML is reported.
func TestLoad_ParseError(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(tmpFile, []byte("min_port = ["), 0600); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	if _, err := Load(tmpFile); err == nil {
		t.Fatal("Load() with malformed TOML: want error, got nil")
	}
}

// TestApply_Defaults verifies defaults fill only unset fields.
func TestApply_Defaults(t *testing.T) {
	cfg := &Config{}
	cfg.Apply()

	if cfg.MinPort != DefaultMinPort {
		t.Errorf("MinPort = %d, want %d", cfg.MinPort, DefaultMinPort)
	}
	if cfg.MaxPort != DefaultMaxPort {
		t.Errorf("MaxPort = %d, want %d", cfg.MaxPort, DefaultMaxPort)
	}
	if cfg.IdleTimeoutSec != DefaultIdleTimeoutSec {
		t.Errorf("IdleTimeoutSec = %d, want %d", cfg.IdleTimeoutSec, DefaultIdleTimeoutSec)
	}
	if cfg.HandoffWaitSec != DefaultHandoffWaitSec {
		t.Errorf("HandoffWaitSec = %d, want %d", cfg.HandoffWaitSec, DefaultHandoffWaitSec)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}

	set := &Config{MinPort: 8000, MaxPort: 8001, IdleTimeoutSec: 5, HandoffWaitSec: 2, LogLevel: "warn"}
	set.Apply()
	if set.MinPort != 8000 || set.MaxPort != 8001 || set.IdleTimeoutSec != 5 || set.HandoffWaitSec != 2 {
		t.Errorf("Apply() overwrote explicit values: %+v", set)
	}
	if set.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", set.LogLevel, "warn")
	}
}

// TestDurations verifies the duration helpers.
func TestDurations(t *testing.T) {
	cfg := &Config{IdleTimeoutSec: 45, HandoffWaitSec: 10}
	if got, want := cfg.IdleTimeout(), 45*time.Second; got != want {
		t.Errorf("IdleTimeout() = %v, want %v", got, want)
	}
	if got, want := cfg.HandoffWait(), 10*time.Second; got != want {
		t.Errorf("HandoffWait() = %v, want %v", got, want)
	}
}
