package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Backend.URL != DefaultBackendURL {
		t.Errorf("backend URL = %q", cfg.Backend.URL)
	}
	if cfg.Polling.Default != 15*time.Second || cfg.Polling.Min != 15*time.Second {
		t.Errorf("polling default/min = %s/%s", cfg.Polling.Default, cfg.Polling.Min)
	}
	if cfg.Polling.Max != 15*time.Minute || cfg.Polling.Growth != 1.25 {
		t.Errorf("polling max/growth = %s/%v", cfg.Polling.Max, cfg.Polling.Growth)
	}
	if len(cfg.Workspace.Folders) != 1 || cfg.Workspace.Folders[0] != "." {
		t.Errorf("folders = %v", cfg.Workspace.Folders)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("OBJID_BACKEND_URL", "https://self-hosted.example")
	t.Setenv("OBJID_API_KEY", "k")
	t.Setenv("OBJID_POLL_DEFAULT", "30s")
	t.Setenv("OBJID_POLL_MAX", "1h")
	t.Setenv("OBJID_POLL_GROWTH", "2")
	t.Setenv("OBJID_WORKSPACE_FOLDERS", " /ws/a, ,/ws/b ")
	t.Setenv("OBJID_STATUS_ENABLED", "false")
	t.Setenv("OBJID_RATE_BURST", "not-a-number")

	cfg := Load()

	if cfg.Backend.URL != "https://self-hosted.example" || cfg.Backend.APIKey != "k" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	if cfg.Polling.Default != 30*time.Second || cfg.Polling.Min != 30*time.Second {
		t.Errorf("min should follow default: %+v", cfg.Polling)
	}
	if cfg.Polling.Max != time.Hour || cfg.Polling.Growth != 2 {
		t.Errorf("polling = %+v", cfg.Polling)
	}
	if got := cfg.Workspace.Folders; len(got) != 2 || got[0] != "/ws/a" || got[1] != "/ws/b" {
		t.Errorf("folders = %v", got)
	}
	if cfg.Status.Enabled {
		t.Error("status should be disabled")
	}
	if cfg.RateLimit.Burst != 10 {
		t.Errorf("invalid int should fall back, got %d", cfg.RateLimit.Burst)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no url", func(c *Config) { c.Backend.URL = "" }},
		{"no timeout", func(c *Config) { c.Backend.Timeout = 0 }},
		{"no folders", func(c *Config) { c.Workspace.Folders = nil }},
		{"bad growth", func(c *Config) { c.Polling.Growth = 0.5 }},
		{"bad port", func(c *Config) { c.Status.Port = 70000 }},
		{"bad mode", func(c *Config) { c.Status.Mode = "prod" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
