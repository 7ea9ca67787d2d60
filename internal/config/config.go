// Package config handles reading and writing the skiff config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/berth-dev/skiff/internal/agent"
)

// Config is the top-level structure for config.yaml.
type Config struct {
	Version  int            `yaml:"version"`
	Claude   ClaudeConfig   `yaml:"claude"`
	Sessions SessionsConfig `yaml:"sessions"`
	UI       UIConfig       `yaml:"ui"`
	Rules    RulesConfig    `yaml:"rules"`
}

// ClaudeConfig holds the defaults applied to new sessions and queries.
type ClaudeConfig struct {
	Binary          string   `yaml:"binary"`
	Model           string   `yaml:"model"`
	PermissionMode  string   `yaml:"permission_mode"`
	AllowedTools    []string `yaml:"allowed_tools"`
	DisallowedTools []string `yaml:"disallowed_tools"`
	SystemPrompt    string   `yaml:"system_prompt"`
	MaxTurns        int      `yaml:"max_turns"`
	Timeout         int      `yaml:"timeout"` // seconds, 0 = none
}

// SessionsConfig controls session storage.
type SessionsConfig struct {
	Dir           string `yaml:"dir"` // relative paths are resolved against the data dir
	MaxRecent     int    `yaml:"max_recent"`
	RetentionDays int    `yaml:"retention_days"` // 0 keeps sessions forever
	CleanOnStart  bool   `yaml:"clean_on_start"` // apply retention when the TUI starts
}

// UIConfig controls the terminal interface.
type UIConfig struct {
	Theme       string `yaml:"theme"` // "dark" | "light"
	ThrottleMS  int    `yaml:"throttle_ms"`
	RestoreLast bool   `yaml:"restore_last"`
}

// RulesConfig points at the XML rules applied to every query.
type RulesConfig struct {
	File string `yaml:"file"`
}

const (
	configFile = "config.yaml"
	appName    = "skiff"

	// EnvDataDir overrides the data directory.
	EnvDataDir = "SKIFF_DATA_DIR"
)

// DataDir returns the directory holding config, sessions, logs and the run
// ledger: $SKIFF_DATA_DIR if set, otherwise skiff/ under the user config dir.
func DataDir() (string, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, configFile)
}

// ReadConfig reads config.yaml from the data directory dir. Fields missing
// from the file keep their DefaultConfig values.
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Load is ReadConfig that falls back to DefaultConfig when no file exists.
func Load(dir string) (*Config, error) {
	cfg, err := ReadConfig(dir)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteConfig writes cfg to config.yaml in dir, creating dir if needed.
func WriteConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	if err := os.WriteFile(Path(dir), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Claude: ClaudeConfig{
			Binary:         agent.DefaultBinary,
			PermissionMode: string(agent.ModeDefault),
			Timeout:        0,
		},
		Sessions: SessionsConfig{
			Dir:           "sessions",
			MaxRecent:     50,
			RetentionDays: 0,
			CleanOnStart:  true,
		},
		UI: UIConfig{
			Theme:       "dark",
			ThrottleMS:  50,
			RestoreLast: true,
		},
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	if _, err := agent.ParsePermissionMode(c.Claude.PermissionMode); err != nil {
		return fmt.Errorf("claude.permission_mode: %w", err)
	}
	if c.Claude.MaxTurns < 0 {
		return fmt.Errorf("claude.max_turns must not be negative")
	}
	if c.Claude.Timeout < 0 {
		return fmt.Errorf("claude.timeout must not be negative")
	}
	if c.Sessions.RetentionDays < 0 {
		return fmt.Errorf("sessions.retention_days must not be negative")
	}
	switch c.UI.Theme {
	case "", "dark", "light":
	default:
		return fmt.Errorf("ui.theme must be dark or light, got %q", c.UI.Theme)
	}
	return nil
}

// SessionsDir resolves the session directory against dataDir.
func (c *Config) SessionsDir(dataDir string) string {
	dir := c.Sessions.Dir
	if dir == "" {
		dir = "sessions"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(dataDir, dir)
}

// RulesFile resolves the rules file against dataDir; "" when unset.
func (c *Config) RulesFile(dataDir string) string {
	if c.Rules.File == "" || filepath.IsAbs(c.Rules.File) {
		return c.Rules.File
	}
	return filepath.Join(dataDir, c.Rules.File)
}

// LogFile is the rotating log path inside dataDir.
func LogFile(dataDir string) string {
	return filepath.Join(dataDir, "logs", appName+".log")
}

// QueryTimeout is claude.timeout as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Claude.Timeout) * time.Second
}

// Throttle is ui.throttle_ms as a duration.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.UI.ThrottleMS) * time.Millisecond
}

// Retention is sessions.retention_days as a duration; zero disables cleanup.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Sessions.RetentionDays) * 24 * time.Hour
}
