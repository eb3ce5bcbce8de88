package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// RoutingConfig points at the geocoding and routing backends used to
// compute travel times.
type RoutingConfig struct {
	// GeocodeURL is a Nominatim-compatible search endpoint.
	GeocodeURL string `yaml:"geocode_url" json:"geocode_url"`
	// RouteURL is an OSRM-compatible route service base (".../route/v1/driving").
	RouteURL string `yaml:"route_url" json:"route_url"`
	// TimeoutSeconds bounds a single travel-time computation. One slow
	// address must not stall the whole run.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status/timeline API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as the canonical display zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// driving periodic engine runs.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of future days fetched and enriched.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// Origin is the departure address travel times are computed from
	// (typically home).
	Origin string `yaml:"origin" json:"origin"`

	// BufferMinutes is the default padding added on top of drive time when
	// deriving leave-by. The live value is kept in the store so settings
	// changes survive restarts; this seeds it on first run.
	BufferMinutes int `yaml:"buffer_minutes" json:"buffer_minutes"`

	// AlertsEnabled seeds the stored alerts toggle on first run.
	AlertsEnabled bool `yaml:"alerts_enabled" json:"alerts_enabled"`

	// RangeTTLMinutes / DriveTTLMinutes override the cache TTLs.
	RangeTTLMinutes int `yaml:"range_ttl_minutes" json:"range_ttl_minutes"`
	DriveTTLMinutes int `yaml:"drive_ttl_minutes" json:"drive_ttl_minutes"`

	// NotifyCommand is the executable used to deliver alerts
	// (e.g. "notify-send"). Empty selects the in-memory notifier.
	NotifyCommand string `yaml:"notify_command" json:"notify_command"`

	// DataDir holds the SQLite database and the ICS body cache.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Routing RoutingConfig `yaml:"routing" json:"routing"`

	// ICS is the list of subscribed calendar sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "Local",
		RefreshCron:     "*/15 * * * *",
		HorizonDays:     7,
		BufferMinutes:   10,
		AlertsEnabled:   true,
		RangeTTLMinutes: 60,
		DriveTTLMinutes: 30,
		DataDir:         "./var/leavetimed",
		Routing: RoutingConfig{
			GeocodeURL:     "https://nominatim.openstreetmap.org/search",
			RouteURL:       "https://router.project-osrm.org/route/v1/driving",
			TimeoutSeconds: 5,
		},
		ICS: []ICSConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g. older versions) still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.BufferMinutes < 0 {
		c.BufferMinutes = d.BufferMinutes
	}
	if c.RangeTTLMinutes <= 0 {
		c.RangeTTLMinutes = d.RangeTTLMinutes
	}
	if c.DriveTTLMinutes <= 0 {
		c.DriveTTLMinutes = d.DriveTTLMinutes
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Routing.GeocodeURL == "" {
		c.Routing.GeocodeURL = d.Routing.GeocodeURL
	}
	if c.Routing.RouteURL == "" {
		c.Routing.RouteURL = d.Routing.RouteURL
	}
	if c.Routing.TimeoutSeconds <= 0 {
		c.Routing.TimeoutSeconds = d.Routing.TimeoutSeconds
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory if needed,
//     write a default config with 0600 perms, and return the defaults.
//   - If the file exists: read YAML, unmarshal, and normalize defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with the error so the
				// caller can decide.
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

// Save writes the configuration to the given path: parent directory 0700,
// atomic temp-file + rename, final permissions 0600.
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

	tmp, err := os.CreateTemp(dir, ".leavetimed-config-*.tmp")
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

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
