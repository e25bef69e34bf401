// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "menuflow.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.RetryStep() != 10*time.Second {
		t.Errorf("expected retry_step=10s, got %s", cfg.RetryStep())
	}
	if cfg.Bootstrap.MaxAttempts != 8 {
		t.Errorf("expected max_attempts=8, got %d", cfg.Bootstrap.MaxAttempts)
	}
	if cfg.SyncTimeout() != 30*time.Second {
		t.Errorf("expected sync timeout 30s, got %s", cfg.SyncTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() does not validate: %v", err)
	}
}

func TestLoad_RequiresMenuflowConfig(t *testing.T) {
	t.Setenv("MENUFLOW_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when MENUFLOW_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "MENUFLOW_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithMenuflowConfig(t *testing.T) {
	configPath := writeConfig(t, `
environment: staging
database:
  path: /srv/menuflow/state.db
`)
	t.Setenv("MENUFLOW_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Database.Path != "/srv/menuflow/state.db" {
		t.Errorf("expected database.path=/srv/menuflow/state.db, got %s", cfg.Database.Path)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := writeConfig(t, `
environment: development

database:
  path: /data/menuflow.db
  pool_size: 2

logging:
  level: debug

bootstrap:
  retry_step: 2s
  max_attempts: 3

sync:
  timeout_ms: 5000
  max_backoff: 30s

dispatch:
  buffer: 16
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Database.PoolSize != 2 {
		t.Errorf("expected pool_size=2, got %d", cfg.Database.PoolSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level=debug, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected format to keep default text, got %s", cfg.Logging.Format)
	}
	if cfg.RetryStep() != 2*time.Second {
		t.Errorf("expected retry_step=2s, got %s", cfg.RetryStep())
	}
	if cfg.Bootstrap.MaxAttempts != 3 {
		t.Errorf("expected max_attempts=3, got %d", cfg.Bootstrap.MaxAttempts)
	}
	if cfg.SyncTimeout() != 5*time.Second {
		t.Errorf("expected sync timeout 5s, got %s", cfg.SyncTimeout())
	}
	if cfg.SyncMaxBackoff() != 30*time.Second {
		t.Errorf("expected max_backoff=30s, got %s", cfg.SyncMaxBackoff())
	}
	if cfg.Dispatch.Buffer != 16 {
		t.Errorf("expected buffer=16, got %d", cfg.Dispatch.Buffer)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Run("explicit section", func(t *testing.T) {
		configPath := writeConfig(t, `
environment: staging
database:
  path: /base.db
staging:
  database:
    path: /staging.db
  logging:
    level: warn
`)
		cfg, err := LoadFile(configPath)
		if err != nil {
			t.Fatalf("LoadFile failed: %v", err)
		}
		if cfg.Database.Path != "/staging.db" {
			t.Errorf("expected staging path, got %s", cfg.Database.Path)
		}
		if cfg.Logging.Level != "warn" {
			t.Errorf("expected level=warn, got %s", cfg.Logging.Level)
		}
	})

	t.Run("production default", func(t *testing.T) {
		configPath := writeConfig(t, `
environment: production
database:
  path: /var/lib/menuflow/menuflow.db
`)
		cfg, err := LoadFile(configPath)
		if err != nil {
			t.Fatalf("LoadFile failed: %v", err)
		}
		if cfg.Logging.Format != "json" {
			t.Errorf("expected production format=json, got %s", cfg.Logging.Format)
		}
	})

	t.Run("inactive section ignored", func(t *testing.T) {
		configPath := writeConfig(t, `
environment: development
database:
  path: /base.db
production:
  database:
    path: /production.db
`)
		cfg, err := LoadFile(configPath)
		if err != nil {
			t.Fatalf("LoadFile failed: %v", err)
		}
		if cfg.Database.Path != "/base.db" {
			t.Errorf("expected base path, got %s", cfg.Database.Path)
		}
	})
}

func TestExpandVariables(t *testing.T) {
	t.Setenv("MENUFLOW_DATA", "/mnt/data")
	configPath := writeConfig(t, `
database:
  path: ${MENUFLOW_DATA}/menuflow.db
`)
	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Database.Path != "/mnt/data/menuflow.db" {
		t.Errorf("expected expanded path, got %s", cfg.Database.Path)
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"${UNSET_MENUFLOW_VAR:-/fallback}/db", "/fallback/db"},
		{"${UNSET_MENUFLOW_VAR}/db", "/db"},
		{"${HOME}/db", "/home/tester/db"},
		{"plain/path", "plain/path"},
	}
	for _, test := range tests {
		got := expandVars(test.input, map[string]string{"HOME": "/home/tester"})
		if got != test.expected {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Environment = "qa"
	cfg.Database.PoolSize = 0
	cfg.Logging.Format = "xml"
	cfg.Bootstrap.RetryStep = "soon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, fragment := range []string{"invalid environment", "database.pool_size", "logging.format", "bootstrap.retry_step"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("validation error missing %q: %v", fragment, err)
		}
	}
}
