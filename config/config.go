// Package config loads the poller configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/st-keller/objid-poller/update"
)

// DefaultBackendURL is the public object ID back end.
const DefaultBackendURL = "https://vjekocom-alext-weu.azurewebsites.net"

// Config holds all application configuration.
type Config struct {
	Backend       BackendConfig
	Polling       PollingConfig
	Workspace     WorkspaceConfig
	Notifications NotificationsConfig
	Status        StatusConfig
	RateLimit     RateLimitConfig
	Log           LogConfig
}

// BackendConfig controls the check endpoint client.
type BackendConfig struct {
	URL     string        // default: DefaultBackendURL
	APIKey  string        // optional, needed by self-hosted back ends
	CAPath  string        // optional PEM bundle; empty = system roots
	Timeout time.Duration // default: 30s
}

// PollingConfig controls the adaptive interval.
type PollingConfig struct {
	Default time.Duration // default: 15s
	Min     time.Duration // default: Default
	Max     time.Duration // default: 15m
	Growth  float64       // default: 1.25
}

// Policy converts the polling config to a backoff policy.
func (p PollingConfig) Policy() update.Policy {
	return update.Policy{
		Default: p.Default,
		Min:     p.Min,
		Max:     p.Max,
		Growth:  p.Growth,
	}
}

// WorkspaceConfig lists the folders scanned for apps.
type WorkspaceConfig struct {
	Folders []string // default: ["."]
}

// NotificationsConfig controls log notifications.
type NotificationsConfig struct {
	// User is the local user name; events by this user are not announced.
	User string

	// History is the number of announced notifications kept in memory.
	History int // default: 100
}

// StatusConfig controls the local status HTTP server.
type StatusConfig struct {
	Enabled bool   // default: true
	Host    string // default: "127.0.0.1"
	Port    int    // default: 7788
	Mode    string // "debug", "release", "test"; default: "release"
}

// RateLimitConfig controls per-client rate limiting of the status API.
type RateLimitConfig struct {
	RequestsPerSecond float64 // default: 5
	Burst             int     // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	pollDefault := envDurationOr("OBJID_POLL_DEFAULT", update.DefaultInterval)

	return &Config{
		Backend: BackendConfig{
			URL:     envOr("OBJID_BACKEND_URL", DefaultBackendURL),
			APIKey:  os.Getenv("OBJID_API_KEY"),
			CAPath:  os.Getenv("OBJID_CA_PATH"),
			Timeout: envDurationOr("OBJID_HTTP_TIMEOUT", 30*time.Second),
		},
		Polling: PollingConfig{
			Default: pollDefault,
			Min:     envDurationOr("OBJID_POLL_MIN", pollDefault),
			Max:     envDurationOr("OBJID_POLL_MAX", update.MaxInterval),
			Growth:  envFloatOr("OBJID_POLL_GROWTH", update.DefaultGrowth),
		},
		Workspace: WorkspaceConfig{
			Folders: envSliceOr("OBJID_WORKSPACE_FOLDERS", []string{"."}),
		},
		Notifications: NotificationsConfig{
			User:    os.Getenv("OBJID_USER"),
			History: envIntOr("OBJID_NOTIFY_HISTORY", 100),
		},
		Status: StatusConfig{
			Enabled: envBoolOr("OBJID_STATUS_ENABLED", true),
			Host:    envOr("OBJID_STATUS_HOST", "127.0.0.1"),
			Port:    envIntOr("OBJID_STATUS_PORT", 7788),
			Mode:    envOr("OBJID_STATUS_MODE", "release"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("OBJID_RATE_RPS", 5.0),
			Burst:             envIntOr("OBJID_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("OBJID_LOG_LEVEL", "info"),
			Format: envOr("OBJID_LOG_FORMAT", "json"),
		},
	}
}

// Validate checks the values Load cannot repair on its own.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend URL required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be > 0")
	}
	if len(c.Workspace.Folders) == 0 {
		return fmt.Errorf("at least one workspace folder required")
	}
	if err := c.Polling.Policy().Validate(); err != nil {
		return fmt.Errorf("polling: %w", err)
	}
	if c.Status.Enabled && (c.Status.Port <= 0 || c.Status.Port > 65535) {
		return fmt.Errorf("status port out of range: %d", c.Status.Port)
	}
	switch c.Status.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("status mode must be debug, release or test, got %q", c.Status.Mode)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
