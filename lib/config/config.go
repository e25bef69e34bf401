// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the daemon configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Sync      SyncConfig      `yaml:"sync"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields an environment section may replace.
// Empty values leave the base value untouched.
type Overrides struct {
	Database *DatabaseConfig `yaml:"database,omitempty"`
	Logging  *LoggingConfig  `yaml:"logging,omitempty"`
	Metrics  *MetricsConfig  `yaml:"metrics,omitempty"`
}

// DatabaseConfig locates the SQLite file holding accounts and
// conversation participants.
type DatabaseConfig struct {
	// Path supports ${VAR} expansion.
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// MetricsConfig configures the HTTP listener serving /metrics and
// /healthz. An empty address disables the listener.
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// BootstrapConfig tunes the connection retry schedule. Attempt k waits
// k*RetryStep before probing; after MaxAttempts transient failures the
// account is disabled.
type BootstrapConfig struct {
	RetryStep   string `yaml:"retry_step"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// SyncConfig tunes the long-poll loop.
type SyncConfig struct {
	// TimeoutMS is the server-side long-poll timeout sent with /sync.
	TimeoutMS int `yaml:"timeout_ms"`
	// MaxBackoff caps the delay between failed /sync requests.
	MaxBackoff string `yaml:"max_backoff"`
}

// DispatchConfig sizes the in-process event bus.
type DispatchConfig struct {
	Buffer int64 `yaml:"buffer"`
}

// Default returns the base configuration onto which the file is
// decoded.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Database: DatabaseConfig{
			Path:     filepath.Join(homeDir, ".local", "share", "menuflow", "menuflow.db"),
			PoolSize: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			ListenAddress: "127.0.0.1:9464",
		},
		Bootstrap: BootstrapConfig{
			RetryStep:   "10s",
			MaxAttempts: 8,
		},
		Sync: SyncConfig{
			TimeoutMS:  30000,
			MaxBackoff: "5m",
		},
		Dispatch: DispatchConfig{
			Buffer: 256,
		},
	}
}

// Load loads configuration from the file named by MENUFLOW_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("MENUFLOW_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("MENUFLOW_CONFIG environment variable not set; " +
			"set it to the path of your menuflow.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies the environment
// section, expands variables, and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{Logging: &LoggingConfig{Format: "json"}}
		}
	}
	if overrides == nil {
		return
	}

	if overrides.Database != nil {
		if overrides.Database.Path != "" {
			c.Database.Path = overrides.Database.Path
		}
		if overrides.Database.PoolSize != 0 {
			c.Database.PoolSize = overrides.Database.PoolSize
		}
	}
	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
	if overrides.Metrics != nil && overrides.Metrics.ListenAddress != "" {
		c.Metrics.ListenAddress = overrides.Metrics.ListenAddress
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Database.Path = expandVars(c.Database.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. Provided vars win
// over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("database.pool_size must be positive, got %d", c.Database.PoolSize))
	}
	if levels := []string{"debug", "info", "warn", "error"}; !slices.Contains(levels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", levels))
	}
	if formats := []string{"text", "json"}; !slices.Contains(formats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formats))
	}
	if step, err := time.ParseDuration(c.Bootstrap.RetryStep); err != nil {
		errs = append(errs, fmt.Errorf("bootstrap.retry_step: %w", err))
	} else if step <= 0 {
		errs = append(errs, fmt.Errorf("bootstrap.retry_step must be positive, got %s", step))
	}
	if c.Bootstrap.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("bootstrap.max_attempts must not be negative, got %d", c.Bootstrap.MaxAttempts))
	}
	if c.Sync.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("sync.timeout_ms must not be negative, got %d", c.Sync.TimeoutMS))
	}
	if maxBackoff, err := time.ParseDuration(c.Sync.MaxBackoff); err != nil {
		errs = append(errs, fmt.Errorf("sync.max_backoff: %w", err))
	} else if maxBackoff <= 0 {
		errs = append(errs, fmt.Errorf("sync.max_backoff must be positive, got %s", maxBackoff))
	}
	if c.Dispatch.Buffer < 0 {
		errs = append(errs, fmt.Errorf("dispatch.buffer must not be negative, got %d", c.Dispatch.Buffer))
	}

	return errors.Join(errs...)
}

// RetryStep returns the parsed bootstrap retry step. Call after
// Validate.
func (c *Config) RetryStep() time.Duration {
	step, _ := time.ParseDuration(c.Bootstrap.RetryStep)
	return step
}

// SyncMaxBackoff returns the parsed sync backoff cap. Call after
// Validate.
func (c *Config) SyncMaxBackoff() time.Duration {
	maxBackoff, _ := time.ParseDuration(c.Sync.MaxBackoff)
	return maxBackoff
}

// SyncTimeout returns the long-poll timeout as a duration.
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.Sync.TimeoutMS) * time.Millisecond
}
