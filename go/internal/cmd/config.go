package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/control"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
)

// Config is the meet configuration file.
type Config struct {
	Server struct {
		Port    string `yaml:"port"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`

	Store struct {
		// memory, sqlite or postgres
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
		RosterFile string `yaml:"roster_file"`
	} `yaml:"store"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Control control.Config `yaml:"control"`

	Mirror struct {
		ProbeInterval time.Duration       `yaml:"probe_interval"`
		WatchInterval time.Duration       `yaml:"watch_interval"`
		OpenWindows   bool                `yaml:"open_windows"`
		Views         []mirror.ViewConfig `yaml:"views"`
	} `yaml:"mirror"`

	Records struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key"`
	} `yaml:"records"`

	Outbox struct {
		Source           string        `yaml:"source"`
		FallbackInterval time.Duration `yaml:"fallback_interval"`
		BatchSize        int32         `yaml:"batch_size"`
	} `yaml:"outbox"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Store.Driver = "memory"
	cfg.Store.SQLitePath = "powermeet.db"
	cfg.NATS.SubjectPrefix = mirror.DefaultSubjectPrefix
	cfg.Control = control.DefaultConfig()
	cfg.Mirror.ProbeInterval = mirror.DefaultProbeInterval
	cfg.Mirror.WatchInterval = mirror.DefaultWatchInterval
	cfg.Outbox.FallbackInterval = 30 * time.Second
	cfg.Outbox.BatchSize = 100
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// loadConfig reads path over the defaults, then applies environment overrides.
// An empty path uses defaults and environment only.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Server.BaseURL = getEnv("BASE_URL", config.Server.BaseURL)
	if config.Server.BaseURL == "" {
		config.Server.BaseURL = "http://localhost:" + config.Server.Port
	}
	config.Store.Driver = getEnv("STORE_DRIVER", config.Store.Driver)
	config.Store.SQLitePath = getEnv("SQLITE_PATH", config.Store.SQLitePath)
	config.Store.RosterFile = getEnv("ROSTER_FILE", config.Store.RosterFile)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.Records.URL = getEnv("RECORDS_URL", config.Records.URL)
	config.Records.APIKey = getEnv("RECORDS_API_KEY", config.Records.APIKey)
	config.Control.TimerDuration = getEnvAsDuration("TIMER_DURATION", config.Control.TimerDuration)
	config.Outbox.Source = getEnv("OUTBOX_SOURCE", config.Outbox.Source)
	config.Outbox.FallbackInterval = getEnvAsDuration("FALLBACK_INTERVAL", config.Outbox.FallbackInterval)
	config.Outbox.BatchSize = int32(getEnvAsInt("OUTBOX_BATCH_SIZE", int(config.Outbox.BatchSize)))

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	for _, v := range c.Mirror.Views {
		if _, err := mirror.ParseViewType(string(v.Type)); err != nil {
			return fmt.Errorf("mirror views: %w", err)
		}
	}
	return nil
}

// views merges configured views over the built-in ones.
func (c *Config) views() map[mirror.ViewType]mirror.ViewConfig {
	views := mirror.DefaultViews()
	for _, v := range c.Mirror.Views {
		base := views[v.Type]
		if v.ChannelName != "" {
			base.ChannelName = v.ChannelName
		}
		if v.WindowName != "" {
			base.WindowName = v.WindowName
		}
		if v.Route != "" {
			base.Route = v.Route
		}
		if v.Geometry != (mirror.Geometry{}) {
			base.Geometry = v.Geometry
		}
		views[v.Type] = base
	}
	return views
}
