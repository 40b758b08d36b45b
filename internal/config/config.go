// Package config loads and validates the calnotes YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Provider names accepted in the provider key.
const (
	ProviderEventKit = "eventkit"
	ProviderICS      = "ics"
)

// Defaults applied by validate when a key is omitted.
const (
	DefaultSyncInterval    = time.Minute
	DefaultPastDays        = 7
	DefaultFutureDays      = 30
	DefaultMaxShift        = 30 * 24 * time.Hour
	DefaultTriggerDebounce = 2 * time.Second
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// UserID is the local account whose events and notes are synchronised.
	UserID string `yaml:"user_id"`

	// DBPath is the SQLite database file. Defaults to
	// ~/.local/share/calnotes/calnotes.db.
	DBPath string `yaml:"db_path"`

	// Provider selects the calendar source: "eventkit" (macOS Calendar) or
	// "ics" (subscribed feeds). Defaults to "eventkit".
	Provider string `yaml:"provider"`

	// ICSFeeds lists the subscribed feeds. Required when Provider is "ics".
	ICSFeeds []FeedConfig `yaml:"ics_feeds,omitempty"`

	// SelfEmails are the addresses that identify the current user among
	// event attendees. Matching is case-insensitive.
	SelfEmails []string `yaml:"self_emails,omitempty"`

	// SyncInterval controls how often calendars are synchronised.
	// Minimum 10s, maximum 1h. Defaults to 1m if unset.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// Schedule is an optional standard 5-field cron expression. When set it
	// takes precedence over SyncInterval.
	Schedule string `yaml:"schedule,omitempty"`

	// Window bounds the synchronised date range around today.
	Window WindowConfig `yaml:"window"`

	// Timezone is the IANA zone used for day boundaries and event keys.
	// Defaults to the system zone.
	Timezone string `yaml:"timezone,omitempty"`

	// Reschedule configures detection of moved events.
	Reschedule RescheduleConfig `yaml:"reschedule"`

	// TriggerDebounce coalesces on-demand sync requests. Defaults to 2s.
	TriggerDebounce time.Duration `yaml:"trigger_debounce"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// FeedConfig is one subscribed ICS feed.
type FeedConfig struct {
	// ID is the stable tracking id of the feed. Renaming a feed must keep it.
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// WindowConfig holds the sync window in days relative to today.
type WindowConfig struct {
	PastDays   int `yaml:"past_days"`
	FutureDays int `yaml:"future_days"`
}

// RescheduleConfig holds reschedule detection settings.
type RescheduleConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxShift is the largest start-time move still treated as a reschedule.
	// Defaults to 720h.
	MaxShift time.Duration `yaml:"max_shift"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "calnotes".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/calnotes/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "calnotes", "config.yaml"), nil
}

// DefaultDBPath returns the default database path: ~/.local/share/calnotes/calnotes.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "calnotes", "calnotes.db"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Write saves the configuration as YAML at path, creating parent
// directories. The file is readable only by the owner since telemetry
// headers may carry tokens.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// Location returns the configured time zone, or time.Local. The zone was
// checked by Load.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// validate checks that all required fields are present and well-formed and
// fills in defaults.
func (c *Config) validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}

	if c.DBPath == "" {
		p, err := DefaultDBPath()
		if err != nil {
			return err
		}
		c.DBPath = p
	}

	if c.Provider == "" {
		c.Provider = ProviderEventKit
	}
	switch c.Provider {
	case ProviderEventKit:
	case ProviderICS:
		if len(c.ICSFeeds) == 0 {
			return fmt.Errorf("ics_feeds must contain at least one entry when provider is %q", ProviderICS)
		}
	default:
		return fmt.Errorf("provider %q is not supported (use %q or %q)", c.Provider, ProviderEventKit, ProviderICS)
	}

	seen := make(map[string]bool, len(c.ICSFeeds))
	for i, feed := range c.ICSFeeds {
		if feed.ID == "" {
			return fmt.Errorf("ics_feeds[%d] has an empty id", i)
		}
		if seen[feed.ID] {
			return fmt.Errorf("ics_feeds id %q is duplicated", feed.ID)
		}
		seen[feed.ID] = true
		u, err := url.ParseRequestURI(feed.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("ics_feeds[%q].url must be a valid http or https URL", feed.ID)
		}
		if feed.Name == "" {
			c.ICSFeeds[i].Name = feed.ID
		}
	}

	for _, e := range c.SelfEmails {
		if !strings.Contains(e, "@") {
			return fmt.Errorf("self_emails entry %q is not an email address", e)
		}
	}

	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.SyncInterval < 10*time.Second {
		return fmt.Errorf("sync_interval %v is too short (minimum 10s)", c.SyncInterval)
	}
	if c.SyncInterval > time.Hour {
		return fmt.Errorf("sync_interval %v is too long (maximum 1h)", c.SyncInterval)
	}

	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("schedule %q: %w", c.Schedule, err)
		}
	}

	if c.Window.PastDays == 0 {
		c.Window.PastDays = DefaultPastDays
	}
	if c.Window.FutureDays == 0 {
		c.Window.FutureDays = DefaultFutureDays
	}
	if c.Window.PastDays < 0 || c.Window.FutureDays < 0 {
		return fmt.Errorf("window days must not be negative")
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone %q: %w", c.Timezone, err)
		}
	}

	if c.Reschedule.MaxShift == 0 {
		c.Reschedule.MaxShift = DefaultMaxShift
	}
	if c.Reschedule.MaxShift < 0 {
		return fmt.Errorf("reschedule.max_shift must not be negative")
	}

	if c.TriggerDebounce == 0 {
		c.TriggerDebounce = DefaultTriggerDebounce
	}
	if c.TriggerDebounce < 0 {
		return fmt.Errorf("trigger_debounce must not be negative")
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
