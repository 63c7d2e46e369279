// Package config loads the sentinel configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"SqueezeSentinel/internal/markethours"
)

// DefaultPath is read when no path is given and $CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Telegram struct {
		BotToken   string `yaml:"bot_token"`
		ChatID     string `yaml:"chat_id"`
		MaxRetries int    `yaml:"max_retries"`
		Commands   bool   `yaml:"commands"`
	} `yaml:"telegram"`
	DataSource struct {
		GatewayURL   string        `yaml:"gateway_url"`
		GatewayKey   string        `yaml:"gateway_key"`
		RequestDelay time.Duration `yaml:"request_delay"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"data_source"`
	Discovery struct {
		YahooScreeners  []string      `yaml:"yahoo_screeners"`
		FinvizURLs      []string      `yaml:"finviz_urls"`
		HaltsURL        string        `yaml:"halts_url"`
		BreakerFailures uint32        `yaml:"breaker_failures"`
		BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
	} `yaml:"discovery"`
	Social struct {
		Provider string        `yaml:"provider"` // apewisdom | none
		Pages    int           `yaml:"pages"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"social"`
	Scanner struct {
		MinChangePercent float64       `yaml:"min_change_percent"`
		MinScore         int           `yaml:"min_score"`
		MaxPrice         float64       `yaml:"max_price"`
		MinVolumeSpike   float64       `yaml:"min_volume_spike"`
		BatchSize        int           `yaml:"batch_size"`
		BatchPause       time.Duration `yaml:"batch_pause"`
		MaxResults       int           `yaml:"max_results"`
		HaltCacheTTL     time.Duration `yaml:"halt_cache_ttl"`
	} `yaml:"scanner"`
	Monitor struct {
		Timezone       string        `yaml:"timezone"`
		Open           string        `yaml:"open"`
		Close          string        `yaml:"close"`
		OpenInterval   time.Duration `yaml:"open_interval"`
		ClosedInterval time.Duration `yaml:"closed_interval"`
		StoreUrgency   int           `yaml:"store_urgency"`
		AlertUrgency   int           `yaml:"alert_urgency"`
	} `yaml:"monitor"`
	Schedule struct {
		ScanInterval    time.Duration `yaml:"scan_interval"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
		Retention       time.Duration `yaml:"retention"`
	} `yaml:"schedule"`
	Database struct {
		Driver string `yaml:"driver"` // sqlite | postgres | memory
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = DefaultPath
	}
	cfg := newWithDefaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// newWithDefaults presets the fields for which zero is a meaningful setting,
// so that an explicit 0 in the file survives decoding.
func newWithDefaults() *Config {
	c := &Config{}
	c.Telegram.MaxRetries = 2
	c.Scanner.MinChangePercent = 100
	c.Scanner.MinScore = 60
	c.Scanner.MinVolumeSpike = 2
	c.Scanner.BatchPause = time.Second
	c.Monitor.StoreUrgency = 50
	c.Monitor.AlertUrgency = 85
	return c
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"GATEWAY_BASE_URL":   &c.DataSource.GatewayURL,
		"GATEWAY_API_KEY":    &c.DataSource.GatewayKey,
		"HTTPS_PROXY":        &c.Proxy,
		"DB_DRIVER":          &c.Database.Driver,
		"DB_DSN":             &c.Database.DSN,
		"LOG_LEVEL":          &c.Log.Level,
		"METRICS_ADDR":       &c.Metrics.Addr,
	}
	for env, field := range overrides {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DataSource.RequestDelay == 0 {
		c.DataSource.RequestDelay = 100 * time.Millisecond
	}
	if c.DataSource.Timeout == 0 {
		c.DataSource.Timeout = 10 * time.Second
	}
	if c.Discovery.BreakerFailures == 0 {
		c.Discovery.BreakerFailures = 3
	}
	if c.Discovery.BreakerCooldown == 0 {
		c.Discovery.BreakerCooldown = 5 * time.Minute
	}
	if c.Social.Provider == "" {
		c.Social.Provider = "apewisdom"
	}
	if c.Social.Pages == 0 {
		c.Social.Pages = 3
	}
	if c.Social.CacheTTL == 0 {
		c.Social.CacheTTL = 15 * time.Minute
	}
	if c.Scanner.MaxPrice == 0 {
		c.Scanner.MaxPrice = 100
	}
	if c.Scanner.BatchSize == 0 {
		c.Scanner.BatchSize = 10
	}
	if c.Scanner.MaxResults == 0 {
		c.Scanner.MaxResults = 20
	}
	if c.Scanner.HaltCacheTTL == 0 {
		c.Scanner.HaltCacheTTL = 5 * time.Minute
	}
	if c.Monitor.Timezone == "" {
		c.Monitor.Timezone = "America/New_York"
	}
	if c.Monitor.Open == "" {
		c.Monitor.Open = "09:30"
	}
	if c.Monitor.Close == "" {
		c.Monitor.Close = "16:00"
	}
	if c.Monitor.OpenInterval == 0 {
		c.Monitor.OpenInterval = 15 * time.Second
	}
	if c.Monitor.ClosedInterval == 0 {
		c.Monitor.ClosedInterval = 5 * time.Minute
	}
	if c.Schedule.ScanInterval == 0 {
		c.Schedule.ScanInterval = 60 * time.Second
	}
	if c.Schedule.CleanupInterval == 0 {
		c.Schedule.CleanupInterval = time.Hour
	}
	if c.Schedule.Retention == 0 {
		c.Schedule.Retention = 24 * time.Hour
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "data/squeeze_sentinel.db"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, postgres, memory", c.Database.Driver)
	}
	switch strings.ToLower(c.Social.Provider) {
	case "apewisdom", "none":
	default:
		return fmt.Errorf("social.provider %q is not one of apewisdom, none", c.Social.Provider)
	}
	if c.Scanner.MinChangePercent < 0 || c.Scanner.MinVolumeSpike < 0 || c.Scanner.BatchPause < 0 {
		return fmt.Errorf("scanner.min_change_percent, min_volume_spike and batch_pause must not be negative")
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram.max_retries must not be negative")
	}
	if c.Scanner.MinScore < 0 || c.Scanner.MinScore > 100 {
		return fmt.Errorf("scanner.min_score must be within 0-100")
	}
	if c.Scanner.BatchSize < 1 {
		return fmt.Errorf("scanner.batch_size must be positive")
	}
	if c.Monitor.StoreUrgency > c.Monitor.AlertUrgency {
		return fmt.Errorf("monitor.store_urgency must not exceed monitor.alert_urgency")
	}
	for name, d := range map[string]time.Duration{
		"monitor.open_interval":     c.Monitor.OpenInterval,
		"monitor.closed_interval":   c.Monitor.ClosedInterval,
		"schedule.scan_interval":    c.Schedule.ScanInterval,
		"schedule.cleanup_interval": c.Schedule.CleanupInterval,
		"schedule.retention":        c.Schedule.Retention,
	} {
		if d < time.Second {
			return fmt.Errorf("%s must be at least 1s", name)
		}
	}
	if _, err := c.MarketHours(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

// MarketHours builds the session predicate from the monitor section.
func (c *Config) MarketHours() (*markethours.Hours, error) {
	return markethours.New(c.Monitor.Timezone, c.Monitor.Open, c.Monitor.Close)
}

// TelegramEnabled reports whether alerts and commands can be delivered.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
