// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/sold-listings-crawler/internal/crawler"
	"github.com/JakeFAU/sold-listings-crawler/internal/policy/ratelimit"
)

// EnvPrefix namespaces environment overrides, e.g. SOLDCRAWLER_STORE_DSN.
const EnvPrefix = "SOLDCRAWLER"

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// CrawlerConfig governs fetching and enumeration.
type CrawlerConfig struct {
	Origin         string        `mapstructure:"origin"`
	UserAgent      string        `mapstructure:"user_agent"`
	Delay          time.Duration `mapstructure:"delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxPages       int           `mapstructure:"max_pages"`
	Seeds          []string      `mapstructure:"seeds"`
	CheckpointFile string        `mapstructure:"checkpoint_file"`
	ArchiveDir     string        `mapstructure:"archive_dir"`
}

// StoreConfig selects and configures the relational store.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the end-of-run Pushgateway push.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from an optional .env file, the config file at path (if any)
// and SOLDCRAWLER_* environment variables.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.origin", crawler.DefaultOrigin)
	v.SetDefault("crawler.user_agent", crawler.DefaultUserAgent)
	v.SetDefault("crawler.delay", ratelimit.MinDelay)
	v.SetDefault("crawler.request_timeout", 30*time.Second)
	v.SetDefault("crawler.max_pages", 50)
	v.SetDefault("crawler.seeds", []string{})
	v.SetDefault("crawler.checkpoint_file", "next_url.txt")
	v.SetDefault("crawler.archive_dir", "")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "data/records.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "soldcrawler")
}

// normalize applies the delay floor and canonical driver names.
func (c *Config) normalize() {
	if c.Crawler.Delay < ratelimit.MinDelay {
		c.Crawler.Delay = ratelimit.MinDelay
	}
	c.Crawler.Origin = strings.TrimRight(c.Crawler.Origin, "/")
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Origin == "" {
		return fmt.Errorf("crawler.origin must be set")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return fmt.Errorf("crawler.request_timeout must be > 0")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver %q is not one of sqlite, postgres, memory", c.Store.Driver)
	}
	return nil
}
