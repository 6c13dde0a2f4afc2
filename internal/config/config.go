package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// APIConfig points at the appointment REST API.
type APIConfig struct {
	// BaseURL is the API root, e.g. "https://clinic.example.com/api".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// TokenPath is the anti-forgery token endpoint relative to BaseURL.
	TokenPath string `yaml:"token_path" json:"token_path"`
	// TokenHeader carries the token on every mutating request.
	TokenHeader string `yaml:"token_header" json:"token_header"`
	// TimeoutSeconds bounds each request.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// RecurrenceConfig bounds series creation.
type RecurrenceConfig struct {
	// MaxOccurrences is the largest accepted "after N occurrences" count.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`
	// SafetyCap is the hard limit on instances from any rule.
	SafetyCap int `yaml:"safety_cap" json:"safety_cap"`
	// Strategy is "client" (expand here, one POST per instance) or
	// "server" (one POST carrying the rule).
	Strategy string `yaml:"strategy" json:"strategy"`
}

// SnapshotConfig sizes the headless calendar capture.
type SnapshotConfig struct {
	// BaseURL is the front-end root the capture loads. Defaults to the
	// local listen address.
	BaseURL        string `yaml:"base_url" json:"base_url"`
	Width          int    `yaml:"width" json:"width"`
	Height         int    `yaml:"height" json:"height"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the calendar API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the calendar API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone whose wall clock defines days, all-day
	// boundaries and recurrence stepping.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	API APIConfig `yaml:"api" json:"api"`

	// RefreshCron is a cron-style schedule (e.g. "*/5 * * * *") for
	// re-fetching calendar_data. Empty disables auto-refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DoubleClickMS is the double-click window in milliseconds.
	DoubleClickMS int `yaml:"double_click_ms" json:"double_click_ms"`

	Recurrence RecurrenceConfig `yaml:"recurrence" json:"recurrence"`

	// ClinicsDisabled lists clinic ids hidden when the calendar opens.
	ClinicsDisabled []string `yaml:"clinics_disabled" json:"clinics_disabled"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultLogLevel    = "info"
	defaultTokenPath   = "/csrf-token/"
	defaultTokenHeader = "X-CSRFToken"
	defaultAPITimeout  = 15
	defaultRefreshCron = "*/5 * * * *"
	defaultDoubleClick = 300
	defaultMaxOccur    = 52
	defaultSafetyCap   = 365
	defaultStrategy    = "client"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{RefreshCron: defaultRefreshCron}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
// RefreshCron is left alone: empty means auto-refresh is off.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = defaultLogLevel
	}

	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.TokenPath == "" {
		c.API.TokenPath = defaultTokenPath
	}
	if c.API.TokenHeader == "" {
		c.API.TokenHeader = defaultTokenHeader
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = defaultAPITimeout
	}

	if c.DoubleClickMS <= 0 {
		c.DoubleClickMS = defaultDoubleClick
	}

	if c.Recurrence.SafetyCap <= 0 {
		c.Recurrence.SafetyCap = defaultSafetyCap
	}
	if c.Recurrence.MaxOccurrences <= 0 {
		c.Recurrence.MaxOccurrences = defaultMaxOccur
	}
	if c.Recurrence.MaxOccurrences > c.Recurrence.SafetyCap {
		c.Recurrence.MaxOccurrences = c.Recurrence.SafetyCap
	}
	switch strings.ToLower(c.Recurrence.Strategy) {
	case "client", "server":
		c.Recurrence.Strategy = strings.ToLower(c.Recurrence.Strategy)
	default:
		c.Recurrence.Strategy = defaultStrategy
	}

	if c.ClinicsDisabled == nil {
		c.ClinicsDisabled = []string{}
	}

	c.Snapshot.BaseURL = strings.TrimRight(strings.TrimSpace(c.Snapshot.BaseURL), "/")
	if c.Snapshot.BaseURL == "" {
		c.Snapshot.BaseURL = "http://" + c.Listen
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = 1280
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = 960
	}
	if c.Snapshot.TimeoutSeconds <= 0 {
		c.Snapshot.TimeoutSeconds = 30
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DoubleClickWindow returns DoubleClickMS as a duration.
func (c *Config) DoubleClickWindow() time.Duration {
	return time.Duration(c.DoubleClickMS) * time.Millisecond
}

// APITimeout returns API.TimeoutSeconds as a duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is unmarshalled and defaults are filled in.
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
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700.
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

	tmp, err := os.CreateTemp(dir, ".apptcal-config-*.tmp")
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}
