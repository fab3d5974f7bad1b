package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadReadsYAMLAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 2m
submissions:
  backend: sqlite
attempts:
  idle_ttl: 45m
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("QUIZ_SUBMISSIONS_BACKEND", "http")
	t.Setenv("QUIZ_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("unexpected yaml values: %+v", cfg)
	}
	if cfg.Submissions.Backend != "http" || cfg.Log.Level != "debug" {
		t.Fatalf("expected env overrides, got backend=%q level=%q", cfg.Submissions.Backend, cfg.Log.Level)
	}
	if TTLDuration(cfg.Redis.TTL, time.Minute) != 2*time.Minute {
		t.Fatalf("unexpected redis ttl %q", cfg.Redis.TTL)
	}
	if TTLDuration(cfg.Attempts.IdleTTL, 0) != 45*time.Minute {
		t.Fatalf("unexpected idle ttl %q", cfg.Attempts.IdleTTL)
	}
	if cfg.Attempts.SweepInterval != "1m" {
		t.Fatalf("expected default sweep interval, got %q", cfg.Attempts.SweepInterval)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Submissions.Backend != "memory" || cfg.Quiz.TTL != "10m" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTTLDurationFallsBack(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := TTLDuration("soon", time.Second); got != time.Second {
		t.Fatalf("expected fallback for garbage, got %v", got)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	cfg := Config{}
	cfg.Log.Level = "warn"
	if NewLogger(cfg).GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level")
	}
	cfg.Log.Level = "loud"
	if NewLogger(cfg).GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info fallback")
	}
}
