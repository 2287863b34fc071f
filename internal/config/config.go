package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	appLog "clubcal/internal/log"
)

// Environment variables that override file values. The calendar key and id
// are public (they end up in client-visible links), so env is the usual
// place deployments put them.
const (
	EnvAPIKey     = "GOOGLE_CALENDAR_API_KEY"
	EnvCalendarID = "GOOGLE_CALENDAR_ID"
	EnvTheme      = "CLUBCAL_THEME"
	EnvListen     = "CLUBCAL_LISTEN"
)

const (
	defaultListen     = "127.0.0.1:8080"
	defaultTimezone   = "America/Phoenix"
	defaultMaxResults = 250
	defaultCacheTTL   = 30
	defaultRefresh    = "*/5 * * * *"
	defaultUpcoming   = 2
	defaultSiteName   = "Computing Club"
	defaultAccent     = "#8c1d40"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// GoogleConfig configures the read-only Google Calendar adapter.
type GoogleConfig struct {
	APIKey     string `yaml:"api_key" json:"-"`
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	// Endpoint overrides the API base URL. Empty means Google's default.
	Endpoint   string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	MaxResults int    `yaml:"max_results" json:"max_results"`
}

// SiteConfig holds presentation settings that used to be read from the
// environment at import time.
type SiteConfig struct {
	Name string `yaml:"name" json:"name"`
	// Theme is "dark" or "light".
	Theme  string `yaml:"theme" json:"theme"`
	Accent string `yaml:"accent" json:"accent"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the site.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone of the club calendar. All day matching
	// is done after normalizing into this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Site   SiteConfig   `yaml:"site" json:"site"`
	Google GoogleConfig `yaml:"google" json:"google"`

	// ICS is the list of additional ICS feeds merged into the calendar.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// CacheTTLSeconds bounds how long a fetched month is reused.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// RefreshCron is a cron-style schedule string (e.g. "*/5 * * * *")
	// for cache upkeep.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// UpcomingCount is how many soonest future events get expanded detail.
	UpcomingCount int `yaml:"upcoming_count" json:"upcoming_count"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		Timezone: defaultTimezone,
		LogLevel: "info",
		Site: SiteConfig{
			Name:   defaultSiteName,
			Theme:  "dark",
			Accent: defaultAccent,
		},
		Google: GoogleConfig{
			MaxResults: defaultMaxResults,
		},
		ICS:             []ICSConfig{},
		CacheTTLSeconds: defaultCacheTTL,
		RefreshCron:     defaultRefresh,
		UpcomingCount:   defaultUpcoming,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Site.Name == "" {
		c.Site.Name = defaultSiteName
	}
	switch c.Site.Theme {
	case "dark", "light":
		// ok
	default:
		// Unknown value; dark is what the site ships with.
		c.Site.Theme = "dark"
	}
	if c.Site.Accent == "" {
		c.Site.Accent = defaultAccent
	}
	if c.Google.MaxResults <= 0 || c.Google.MaxResults > 2500 {
		c.Google.MaxResults = defaultMaxResults
	}
	c.Google.APIKey = strings.TrimSpace(c.Google.APIKey)
	c.Google.CalendarID = strings.TrimSpace(c.Google.CalendarID)
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = defaultCacheTTL
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.UpcomingCount <= 0 {
		c.UpcomingCount = defaultUpcoming
	}
}

// ApplyEnv overrides file values with environment variables. lookup is
// usually os.LookupEnv; tests pass a map-backed function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.Google.APIKey = v
	}
	if v, ok := lookup(EnvCalendarID); ok && v != "" {
		c.Google.CalendarID = v
	}
	if v, ok := lookup(EnvTheme); ok && v != "" {
		c.Site.Theme = strings.ToLower(v)
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Listen = v
	}
	c.Normalize()
}

// GoogleConfigured reports whether both the API key and calendar id are set.
func (c *Config) GoogleConfigured() bool {
	return c.Google.APIKey != "" && c.Google.CalendarID != ""
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Location resolves Timezone. An invalid name falls back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions, since the file may hold the
// API key.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".clubcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
