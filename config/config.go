/*
Package config holds the server configuration.

SOURCES (later wins):
  1. DefaultConfig
  2. YAML file (created with defaults on first run, 0600)
  3. Environment variables (AGENDA_*)
  4. Command-line flags (cmd/server)

SEE ALSO:
  - cmd/server/main.go: flag overrides
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen" env:"AGENDA_LISTEN"`

	// DBPath is the SQLite file. ":memory:" keeps everything in process.
	DBPath string `yaml:"db_path" json:"db_path" env:"AGENDA_DB_PATH"`

	// LogMode is "dev" or "prod".
	LogMode string `yaml:"log_mode" json:"log_mode" env:"AGENDA_LOG_MODE"`

	// Timezone is the IANA zone used for "today" and ICS wall-clock times.
	Timezone string `yaml:"timezone" json:"timezone" env:"AGENDA_TIMEZONE"`

	// WeekStart is the first column of week and month grids:
	// "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start" env:"AGENDA_WEEK_START"`

	// FullWeeks pads month grids at the end to a whole number of weeks.
	FullWeeks bool `yaml:"full_weeks" json:"full_weeks" env:"AGENDA_FULL_WEEKS"`

	// ReminderCron schedules the due-reminder sweep (e.g. "*/15 * * * *").
	// Empty disables the sweep.
	ReminderCron string `yaml:"reminder_cron" json:"reminder_cron" env:"AGENDA_REMINDER_CRON"`

	// SpillWeeks makes month views also return events on the adjacent-month
	// days of their first and last week.
	SpillWeeks bool `yaml:"spill_weeks" json:"spill_weeks" env:"AGENDA_SPILL_WEEKS"`

	// SessionCacheSize bounds how many X-Agenda-Session trackers are kept;
	// the least recently used is evicted.
	SessionCacheSize int `yaml:"session_cache_size" json:"session_cache_size" env:"AGENDA_SESSION_CACHE_SIZE"`

	// EnableScenarios exposes /api/scenarios/load, which resets the database.
	EnableScenarios bool `yaml:"enable_scenarios" json:"enable_scenarios" env:"AGENDA_ENABLE_SCENARIOS"`

	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" env:"AGENDA_ALLOWED_ORIGINS" envSeparator:","`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultDBPath       = "./data/agenda.db"
	defaultReminderCron = "*/15 * * * *"
	defaultSessionCache = 1024
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           defaultListen,
		DBPath:           defaultDBPath,
		LogMode:          "dev",
		Timezone:         "UTC",
		WeekStart:        "sunday",
		ReminderCron:     defaultReminderCron,
		SessionCacheSize: defaultSessionCache,
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
	}
}

// Normalize fills in missing/zero values so partially-filled files still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DBPath == "" {
		c.DBPath = defaultDBPath
	}
	switch strings.ToLower(c.LogMode) {
	case "prod", "production":
		c.LogMode = "prod"
	default:
		c.LogMode = "dev"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday":
		c.WeekStart = "monday"
	default:
		c.WeekStart = "sunday"
	}
	if c.SessionCacheSize <= 0 {
		c.SessionCacheSize = defaultSessionCache
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{}
	}
}

// WeekStartDay maps WeekStart to a time.Weekday.
func (c *Config) WeekStartDay() time.Weekday {
	if strings.EqualFold(c.WeekStart, "monday") {
		return time.Monday
	}
	return time.Sunday
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads the YAML file at path, creating it with defaults on first run,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overlays AGENDA_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes cfg atomically via a temp file + rename, with 0600 permissions.
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

	tmp, err := os.CreateTemp(dir, ".agenda-config-*.tmp")
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
