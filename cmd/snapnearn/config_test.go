package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DarsanV/HackaThrone-team91/internal/domain"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Profile != domain.ProfileSingle || cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected single-node defaults, got %s/%s", cfg.Profile, cfg.Repository.Driver)
		}
		if cfg.Lifecycle.DuplicateWindow != 10*time.Minute {
			t.Errorf("expected 10m duplicate window, got %v", cfg.Lifecycle.DuplicateWindow)
		}
		if !cfg.Worker.Enabled {
			t.Error("expected worker enabled by default")
		}
	})

	t.Run("ClusterProfile", func(t *testing.T) {
		t.Setenv("SNAPNEARN_PROFILE", "cluster")
		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Repository.Driver != "postgres" || cfg.EventBus.Type != "nats" || cfg.Cache.Type != "redis" {
			t.Errorf("expected cluster stack, got %s/%s/%s", cfg.Repository.Driver, cfg.EventBus.Type, cfg.Cache.Type)
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("SNAPNEARN_SERVER_PORT", "9090")
		t.Setenv("SNAPNEARN_REPOSITORY_DRIVER", "memory")
		t.Setenv("SNAPNEARN_LIFECYCLE_DUPLICATE_WINDOW", "2m")
		t.Setenv("SNAPNEARN_DEBUG", "true")

		cfg, err := loadConfig("")
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Repository.Driver != "memory" {
			t.Errorf("expected memory driver, got %s", cfg.Repository.Driver)
		}
		if cfg.Lifecycle.DuplicateWindow != 2*time.Minute {
			t.Errorf("expected 2m, got %v", cfg.Lifecycle.DuplicateWindow)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level, got %s", cfg.Logging.Level)
		}
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "snapnearn.yaml")
		yaml := "server:\n  port: 7070\nnotice:\n  authority: Bengaluru Traffic Police\nintake:\n  rate_per_minute: 5\n"
		if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := loadConfig(path)
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Server.Port != 7070 || cfg.Intake.RatePerMinute != 5 {
			t.Errorf("file values not applied: port=%d rate=%d", cfg.Server.Port, cfg.Intake.RatePerMinute)
		}
		if cfg.Notice.Authority != "Bengaluru Traffic Police" {
			t.Errorf("unexpected authority %q", cfg.Notice.Authority)
		}
		if cfg.Intake.Burst != 10 {
			t.Errorf("expected default burst to survive, got %d", cfg.Intake.Burst)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestPolicyCheckCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("fines:\n  no_helmet: 700\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	cmd := rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"policy", "check", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("policy check failed: %v", err)
	}
	if !strings.Contains(out.String(), "policy ok") || !strings.Contains(out.String(), "evidence_mismatch") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "snapnearn dev") {
		t.Errorf("unexpected output: %q", out.String())
	}
}
