package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("Default() config has validation errors: %v", ValidationErrors(errs))
	}
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.Session.ReadyPollIntervalMs != 500 {
		t.Errorf("Session.ReadyPollIntervalMs = %d, want 500", cfg.Session.ReadyPollIntervalMs)
	}
	if cfg.Watch.IntervalSeconds != 2 {
		t.Errorf("Watch.IntervalSeconds = %d, want 2", cfg.Watch.IntervalSeconds)
	}
	if cfg.Daemon.SyncIntervalSeconds != 60 {
		t.Errorf("Daemon.SyncIntervalSeconds = %d, want 60", cfg.Daemon.SyncIntervalSeconds)
	}
	if cfg.Paths.PlansDir != "docs/plans" {
		t.Errorf("Paths.PlansDir = %q, want %q", cfg.Paths.PlansDir, "docs/plans")
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %q, want %q", cfg.Store.Backend, "sqlite")
	}
}

func TestValidateSession(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ready timeout", func(c *Config) { c.Session.ReadyTimeoutSeconds = 0 }},
		{"poll interval too fast", func(c *Config) { c.Session.ReadyPollIntervalMs = 50 }},
		{"poll interval too slow", func(c *Config) { c.Session.ReadyPollIntervalMs = 10000 }},
		{"zero capture lines", func(c *Config) { c.Session.CaptureLines = 0 }},
		{"empty agent command", func(c *Config) { c.Session.AgentCommand = "" }},
		{"negative kill grace", func(c *Config) { c.Session.KillGraceSeconds = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if errs := cfg.Validate(); len(errs) == 0 {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestValidateWatch(t *testing.T) {
	cfg := Default()
	cfg.Watch.IntervalSeconds = 0
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Error("expected validation error for zero watch interval")
	}

	cfg = Default()
	cfg.Watch.TimeoutMinutes = -1
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Error("expected validation error for negative watch timeout")
	}

	// Zero timeout means no timeout and is valid
	cfg = Default()
	cfg.Watch.TimeoutMinutes = 0
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("zero watch timeout should be valid, got: %v", errs)
	}
}

func TestValidatePlansDir(t *testing.T) {
	cfg := Default()
	cfg.Paths.PlansDir = "/etc/plans"
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Error("expected validation error for absolute plans_dir")
	}

	cfg = Default()
	cfg.Paths.PlansDir = "../plans"
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Error("expected validation error for parent reference in plans_dir")
	}
}

func TestValidateStoreBackend(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "postgres"
	if errs := cfg.Validate(); len(errs) == 0 {
		t.Error("expected validation error for unknown store backend")
	}

	cfg = Default()
	cfg.Store.Backend = "memory"
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Errorf("memory backend should be valid, got: %v", errs)
	}
}

func TestResolveStateDir(t *testing.T) {
	repo := filepath.Join("/tmp", "repo")

	p := PathsConfig{StateDir: ""}
	if got, want := p.ResolveStateDir(repo), filepath.Join(repo, ".overseer"); got != want {
		t.Errorf("ResolveStateDir() = %q, want %q", got, want)
	}

	p = PathsConfig{StateDir: "state"}
	if got, want := p.ResolveStateDir(repo), filepath.Join(repo, "state"); got != want {
		t.Errorf("ResolveStateDir() relative = %q, want %q", got, want)
	}

	p = PathsConfig{StateDir: "/var/lib/overseer"}
	if got := p.ResolveStateDir(repo); got != "/var/lib/overseer" {
		t.Errorf("ResolveStateDir() absolute = %q, want /var/lib/overseer", got)
	}
}

func TestResolveDatabasePath(t *testing.T) {
	repo := filepath.Join("/tmp", "repo")

	cfg := Default()
	want := filepath.Join(repo, ".overseer", "overseer.db")
	if got := cfg.ResolveDatabasePath(repo); got != want {
		t.Errorf("ResolveDatabasePath() = %q, want %q", got, want)
	}

	cfg.Store.DatabasePath = "/data/custom.db"
	if got := cfg.ResolveDatabasePath(repo); got != "/data/custom.db" {
		t.Errorf("ResolveDatabasePath() override = %q, want /data/custom.db", got)
	}
}

func TestValidationErrorsFormatting(t *testing.T) {
	errs := ValidationErrors{
		{Field: "watch.interval_seconds", Value: 0, Message: "must be positive"},
		{Field: "session.agent_command", Value: "", Message: "cannot be empty"},
	}
	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("Error() = %q, want count header", msg)
	}
	if !strings.Contains(msg, "watch.interval_seconds") {
		t.Errorf("Error() = %q, missing field name", msg)
	}

	single := ValidationErrors{errs[0]}
	if strings.Contains(single.Error(), "validation errors") {
		t.Errorf("single error should not have count header: %q", single.Error())
	}
}
