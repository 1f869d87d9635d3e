package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete overseer configuration
type Config struct {
	Session SessionConfig `mapstructure:"session"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SessionConfig controls tmux session behavior. Session names always carry
// the fixed "overseer" prefix so any process can recompute them without
// consulting configuration.
type SessionConfig struct {
	// ReadyTimeoutSeconds is how long to wait for an agent to become ready
	// after session creation (default: 60)
	ReadyTimeoutSeconds int `mapstructure:"ready_timeout_seconds"`
	// ReadyPollIntervalMs is how often to poll the pane while waiting for
	// readiness (default: 500)
	ReadyPollIntervalMs int `mapstructure:"ready_poll_interval_ms"`
	// CaptureLines limits how many lines of pane output are captured when
	// probing readiness (default: 50)
	CaptureLines int `mapstructure:"capture_lines"`
	// AgentCommand is the command launched inside new sessions
	AgentCommand string `mapstructure:"agent_command"`
	// KillGraceSeconds is how long teardown waits between a polite interrupt
	// and a hard kill (default: 5)
	KillGraceSeconds int `mapstructure:"kill_grace_seconds"`
}

// WatchConfig controls the status-watch engine
type WatchConfig struct {
	// IntervalSeconds is the poll interval for streaming watches (default: 2)
	IntervalSeconds int `mapstructure:"interval_seconds"`
	// TimeoutMinutes is the default watch budget, 0 = no timeout
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
}

// DaemonConfig controls the background sync daemon
type DaemonConfig struct {
	// SyncIntervalSeconds is the time between sync cycles (default: 60)
	SyncIntervalSeconds int `mapstructure:"sync_interval_seconds"`
	// PidFile is where the daemon records its PID. Empty means
	// <repo>/.overseer/daemon.pid
	PidFile string `mapstructure:"pid_file"`
}

// PathsConfig controls where overseer reads and writes its data
type PathsConfig struct {
	// StateDir is the per-repository state directory. If empty, defaults to
	// ".overseer" relative to the repository root. Supports ~ expansion.
	StateDir string `mapstructure:"state_dir"`
	// PlansDir is the directory of plan documents relative to a worktree
	// root (default: "docs/plans")
	PlansDir string `mapstructure:"plans_dir"`
}

// StoreConfig controls the remote store backend
type StoreConfig struct {
	// Backend selects the store implementation: "sqlite" or "memory"
	// (default: "sqlite")
	Backend string `mapstructure:"backend"`
	// DatabasePath overrides the SQLite database location. Empty means
	// <state_dir>/overseer.db
	DatabasePath string `mapstructure:"database_path"`
}

// LoggingConfig controls structured logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log file path. Empty means stderr.
	File string `mapstructure:"file"`
}

// ReadyTimeout returns the readiness budget as a time.Duration
func (s *SessionConfig) ReadyTimeout() time.Duration {
	return time.Duration(s.ReadyTimeoutSeconds) * time.Second
}

// ReadyPollInterval returns the readiness poll interval as a time.Duration
func (s *SessionConfig) ReadyPollInterval() time.Duration {
	return time.Duration(s.ReadyPollIntervalMs) * time.Millisecond
}

// KillGrace returns the teardown grace period as a time.Duration
func (s *SessionConfig) KillGrace() time.Duration {
	return time.Duration(s.KillGraceSeconds) * time.Second
}

// Interval returns the watch poll interval as a time.Duration
func (w *WatchConfig) Interval() time.Duration {
	return time.Duration(w.IntervalSeconds) * time.Second
}

// Timeout returns the watch budget as a time.Duration (0 means no timeout)
func (w *WatchConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutMinutes) * time.Minute
}

// SyncInterval returns the daemon cycle interval as a time.Duration
func (d *DaemonConfig) SyncInterval() time.Duration {
	return time.Duration(d.SyncIntervalSeconds) * time.Second
}

// ResolveStateDir returns the resolved state directory path.
// If StateDir is empty, it returns the default path relative to repoRoot.
// If StateDir starts with ~, it expands to the user's home directory.
// If StateDir is a relative path, it's resolved relative to repoRoot.
func (p *PathsConfig) ResolveStateDir(repoRoot string) string {
	if p.StateDir == "" {
		return filepath.Join(repoRoot, ".overseer")
	}

	path := p.StateDir

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}

	return path
}

// ResolveDatabasePath returns the SQLite database location for the given
// repository root, honoring the DatabasePath override.
func (c *Config) ResolveDatabasePath(repoRoot string) string {
	if c.Store.DatabasePath != "" {
		return c.Store.DatabasePath
	}
	return filepath.Join(c.Paths.ResolveStateDir(repoRoot), "overseer.db")
}

// ResolvePidFile returns the daemon PID file location for the given
// repository root, honoring the PidFile override.
func (c *Config) ResolvePidFile(repoRoot string) string {
	if c.Daemon.PidFile != "" {
		return c.Daemon.PidFile
	}
	return filepath.Join(c.Paths.ResolveStateDir(repoRoot), "daemon.pid")
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ReadyTimeoutSeconds: 60,
			ReadyPollIntervalMs: 500,
			CaptureLines:        50,
			AgentCommand:        "claude",
			KillGraceSeconds:    5,
		},
		Watch: WatchConfig{
			IntervalSeconds: 2,
			TimeoutMinutes:  0, // No timeout by default
		},
		Daemon: DaemonConfig{
			SyncIntervalSeconds: 60,
			PidFile:             "", // Empty means <state_dir>/daemon.pid
		},
		Paths: PathsConfig{
			StateDir: "", // Empty means use default: .overseer
			PlansDir: "docs/plans",
		},
		Store: StoreConfig{
			Backend:      "sqlite",
			DatabasePath: "", // Empty means <state_dir>/overseer.db
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Session defaults
	viper.SetDefault("session.ready_timeout_seconds", defaults.Session.ReadyTimeoutSeconds)
	viper.SetDefault("session.ready_poll_interval_ms", defaults.Session.ReadyPollIntervalMs)
	viper.SetDefault("session.capture_lines", defaults.Session.CaptureLines)
	viper.SetDefault("session.agent_command", defaults.Session.AgentCommand)
	viper.SetDefault("session.kill_grace_seconds", defaults.Session.KillGraceSeconds)

	// Watch defaults
	viper.SetDefault("watch.interval_seconds", defaults.Watch.IntervalSeconds)
	viper.SetDefault("watch.timeout_minutes", defaults.Watch.TimeoutMinutes)

	// Daemon defaults
	viper.SetDefault("daemon.sync_interval_seconds", defaults.Daemon.SyncIntervalSeconds)
	viper.SetDefault("daemon.pid_file", defaults.Daemon.PidFile)

	// Paths defaults
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	viper.SetDefault("paths.plans_dir", defaults.Paths.PlansDir)

	// Store defaults
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.database_path", defaults.Store.DatabasePath)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "overseer")
	}
	// Fall back to ~/.config/overseer
	home, err := os.UserHomeDir()
	if err != nil {
		return ".overseer"
	}
	return filepath.Join(home, ".config", "overseer")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
