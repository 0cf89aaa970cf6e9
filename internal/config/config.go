package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danpilch/tramboard/internal/departures"
)

// Flag is a yaml boolean that also accepts 0 and 1.
type Flag bool

func (f *Flag) UnmarshalYAML(value *yaml.Node) error {
	switch strings.ToLower(strings.TrimSpace(value.Value)) {
	case "1", "true", "yes", "on":
		*f = true
	case "0", "false", "no", "off", "":
		*f = false
	default:
		return fmt.Errorf("line %d: invalid boolean %q", value.Line, value.Value)
	}
	return nil
}

type LookupConfig struct {
	Station             string `yaml:"station" validate:"required"`
	NumberOfConnections int    `yaml:"number_of_connections" validate:"gte=0"`
	GroupByRoute        Flag   `yaml:"group_by_route"`
}

type FeedConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type BoardConfig struct {
	RefreshInterval   time.Duration `yaml:"refresh_interval" validate:"gte=0"`
	Timezone          string        `yaml:"timezone"`
	Listen            string        `yaml:"listen"`
	CacheSize         int           `yaml:"cache_size" validate:"gte=0"`
	DistinctLimit     bool          `yaml:"distinct_limit"`
	ServiceDayOverlap bool          `yaml:"service_day_overlap"`
}

// ExclusionConfig names a non-passenger trip pattern, e.g. a depot return.
type ExclusionConfig struct {
	Route    string `yaml:"route"`
	Headsign string `yaml:"headsign" validate:"required"`
}

type WeatherConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Latitude        float64       `yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude       float64       `yaml:"longitude" validate:"gte=-180,lte=180"`
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gte=0"`
	BaseURL         string        `yaml:"base_url" validate:"omitempty,url"`
}

type NotifyConfig struct {
	Enabled  bool          `yaml:"enabled"`
	LeadTime time.Duration `yaml:"lead_time" validate:"gte=0"`
}

type Config struct {
	Lookup     LookupConfig      `yaml:"lookup"`
	Feed       FeedConfig        `yaml:"feed"`
	Board      BoardConfig       `yaml:"board"`
	Exclusions []ExclusionConfig `yaml:"exclusions" validate:"dive"`
	Weather    WeatherConfig     `yaml:"weather"`
	Notify     NotifyConfig      `yaml:"notify"`
	LogLevel   string            `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes yaml config, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Lookup.NumberOfConnections == 0 {
		c.Lookup.NumberOfConnections = 5
	}
	if c.Feed.Path == "" {
		c.Feed.Path = "./data"
	}
	if c.Board.RefreshInterval == 0 {
		c.Board.RefreshInterval = 60 * time.Second
	}
	if c.Board.Listen == "" {
		c.Board.Listen = ":8080"
	}
	if c.Board.CacheSize == 0 {
		c.Board.CacheSize = 128
	}
	if c.Weather.RefreshInterval == 0 {
		c.Weather.RefreshInterval = 30 * time.Minute
	}
	if c.Notify.LeadTime == 0 {
		c.Notify.LeadTime = 5 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if strings.TrimSpace(c.Lookup.Station) == "" {
		return fmt.Errorf("lookup: station is required")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("board: %w", err)
	}
	if c.Weather.Enabled && c.Weather.Latitude == 0 && c.Weather.Longitude == 0 {
		return fmt.Errorf("weather: latitude and longitude are required when enabled")
	}
	return nil
}

// Location returns the board time zone, local time when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Board.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Board.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Board.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Mode() departures.Mode {
	return departures.ModeFor(bool(c.Lookup.GroupByRoute))
}

func (c *Config) EngineExclusions() []departures.Exclusion {
	out := make([]departures.Exclusion, 0, len(c.Exclusions))
	for _, x := range c.Exclusions {
		out = append(out, departures.Exclusion{Route: x.Route, Headsign: x.Headsign})
	}
	return out
}
