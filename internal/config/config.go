// Package config loads and persists cogmux configuration from
// workspace-local YAML with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultDirName is the workspace-local directory cogmux keeps its
// state in (config, database, usage stats, logs).
const DefaultDirName = ".cogmux"

// DefaultFileName is the config file name inside DefaultDirName.
const DefaultFileName = "config.yaml"

// Config is the root configuration document.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Engine  EngineConfig  `yaml:"engine"`
	Policy  PolicyConfig  `yaml:"policy"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Chat    ChatConfig    `yaml:"chat"`
}

// EngineConfig tunes the dispatch engine.
type EngineConfig struct {
	// ConfidenceFloor is the minimum fitness confidence a mode must
	// report to stay in the running for a dispatch.
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	// HistoryLimit caps the in-memory per-session history ring.
	HistoryLimit int `yaml:"history_limit"`
	// FanoutTimeout bounds a single CanHandle fan-out, e.g. "250ms".
	FanoutTimeout string `yaml:"fanout_timeout"`
}

// PolicyConfig is the persisted auto-switch policy. The stored policy
// in the database takes precedence once one has been saved.
type PolicyConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Threshold       float64 `yaml:"threshold"`
	LearningEnabled bool    `yaml:"learning_enabled"`
}

// SessionConfig controls idle session reaping.
type SessionConfig struct {
	IdleTTL       string `yaml:"idle_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

// StorageConfig locates the SQLite database and usage stats.
// Relative paths are resolved against the workspace root.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	UsageDir     string `yaml:"usage_dir"`
}

// LoggingConfig mirrors the logging package options.
type LoggingConfig struct {
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ChatConfig tunes the interactive REPL.
type ChatConfig struct {
	// DefaultSession pins the REPL to a fixed session ID. Empty means
	// a fresh session per run.
	DefaultSession string `yaml:"default_session"`
	NoColor        bool   `yaml:"no_color"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Name:    "cogmux",
		Version: "0.1.0",
		Engine: EngineConfig{
			ConfidenceFloor: 0.15,
			HistoryLimit:    50,
			FanoutTimeout:   "250ms",
		},
		Policy: PolicyConfig{
			Enabled:         true,
			Threshold:       0.2,
			LearningEnabled: true,
		},
		Session: SessionConfig{
			IdleTTL:       "30m",
			SweepInterval: "1m",
		},
		Storage: StorageConfig{
			DatabasePath: filepath.Join(DefaultDirName, "cogmux.db"),
			UsageDir:     DefaultDirName,
		},
		Logging: LoggingConfig{
			Dir:        filepath.Join(DefaultDirName, "logs"),
			Level:      "info",
			Console:    false,
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Chat: ChatConfig{},
	}
}

// DefaultPath returns the config file path for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DefaultDirName, DefaultFileName)
}

// Load reads configuration from path. A missing file is not an error;
// defaults are returned. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides lets COGMUX_* variables override file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COGMUX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("COGMUX_LOG_DIR"); v != "" {
		c.Logging.Dir = v
	}
	if v := os.Getenv("COGMUX_LOG_CONSOLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.Console = b
		}
	}
	if v := os.Getenv("COGMUX_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("COGMUX_USAGE_DIR"); v != "" {
		c.Storage.UsageDir = v
	}
	if v := os.Getenv("COGMUX_CONFIDENCE_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Engine.ConfidenceFloor = f
		}
	}
	if v := os.Getenv("COGMUX_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.HistoryLimit = n
		}
	}
	if v := os.Getenv("COGMUX_POLICY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Policy.Enabled = b
		}
	}
	if v := os.Getenv("COGMUX_POLICY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Policy.Threshold = f
		}
	}
	if v := os.Getenv("COGMUX_SESSION_TTL"); v != "" {
		c.Session.IdleTTL = v
	}
}

// GetFanoutTimeout parses Engine.FanoutTimeout, defaulting to 250ms.
func (c *Config) GetFanoutTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.FanoutTimeout)
	if err != nil {
		return 250 * time.Millisecond
	}
	return d
}

// GetIdleTTL parses Session.IdleTTL, defaulting to 30 minutes.
func (c *Config) GetIdleTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.IdleTTL)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// GetSweepInterval parses Session.SweepInterval, defaulting to 1 minute.
func (c *Config) GetSweepInterval() time.Duration {
	d, err := time.ParseDuration(c.Session.SweepInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// ResolvePath joins a configured path to the workspace root unless it
// is already absolute.
func ResolvePath(workspace, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

// Validate checks ranges and duration syntax.
func (c *Config) Validate() error {
	if c.Engine.ConfidenceFloor < 0 || c.Engine.ConfidenceFloor > 1 {
		return fmt.Errorf("engine.confidence_floor must be in [0,1], got %v", c.Engine.ConfidenceFloor)
	}
	if c.Engine.HistoryLimit <= 0 {
		return fmt.Errorf("engine.history_limit must be positive, got %d", c.Engine.HistoryLimit)
	}
	if c.Policy.Threshold < 0 || c.Policy.Threshold > 1 {
		return fmt.Errorf("policy.threshold must be in [0,1], got %v", c.Policy.Threshold)
	}
	if _, err := time.ParseDuration(c.Engine.FanoutTimeout); err != nil {
		return fmt.Errorf("engine.fanout_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Session.IdleTTL); err != nil {
		return fmt.Errorf("session.idle_ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Session.SweepInterval); err != nil {
		return fmt.Errorf("session.sweep_interval: %w", err)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging rotation values must be non-negative")
	}
	return nil
}
