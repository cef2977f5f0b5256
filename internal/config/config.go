// Package config loads and validates scrapewatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backends.
const (
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheMemory   = "memory"
)

// Notification backends.
const (
	NotifyConsole  = "console"
	NotifyTelegram = "telegram"
	NotifyPubSub   = "pubsub"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Scraper ScraperConfig `mapstructure:"scraper"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Server  ServerConfig  `mapstructure:"server"`
}

// LogConfig toggles zap development features.
type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// ScraperConfig governs target loading, fetching and notification.
type ScraperConfig struct {
	TargetsFile      string        `mapstructure:"targets_file"`
	Address          string        `mapstructure:"address"`
	UserAgent        string        `mapstructure:"user_agent"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
	Interval         time.Duration `mapstructure:"interval"`
	RateLimitPerHost float64       `mapstructure:"rate_limit_per_host"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
	MaxBodySize      int           `mapstructure:"max_body_size"`
}

// CacheConfig selects and configures the last-seen fragment store.
type CacheConfig struct {
	Backend  string         `mapstructure:"backend"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig points at the embedded database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig controls access to a shared Postgres cache.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MetricsConfig controls the request log writer.
type MetricsConfig struct {
	Path         string        `mapstructure:"path"`
	FlushBytes   int           `mapstructure:"flush_bytes"`
	BufferSize   int           `mapstructure:"buffer_size"`
	MaxBatchWait time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout  time.Duration `mapstructure:"sink_timeout"`
	LogEvents    bool          `mapstructure:"log_events"`
}

// NotifyConfig selects the notification transport.
type NotifyConfig struct {
	Backend  string         `mapstructure:"backend"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// TelegramConfig holds bot credentials.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
	APIURL string `mapstructure:"api_url"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// ServerConfig controls the optional HTTP surface. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from disk/environment. Environment variables use the
// SCRAPER_ prefix with dots replaced by underscores, e.g. SCRAPER_CACHE_BACKEND.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.development", false)

	v.SetDefault("scraper.targets_file", "targets.yaml")
	v.SetDefault("scraper.address", "everyone@everyone.com")
	v.SetDefault("scraper.user_agent", "scrapewatch/1.0")
	v.SetDefault("scraper.fetch_timeout", 15*time.Second)
	v.SetDefault("scraper.send_timeout", 10*time.Second)
	v.SetDefault("scraper.interval", time.Hour)
	v.SetDefault("scraper.rate_limit_per_host", 0.0)
	v.SetDefault("scraper.rate_limit_burst", 1)
	v.SetDefault("scraper.max_body_size", 0)

	v.SetDefault("cache.backend", CacheSQLite)
	v.SetDefault("cache.sqlite.path", "./.scraper_target_cache.db")
	v.SetDefault("cache.postgres.dsn", "")
	v.SetDefault("cache.postgres.table", "kv")
	v.SetDefault("cache.postgres.max_conns", 4)

	v.SetDefault("metrics.path", "scraper-metrics.csv")
	v.SetDefault("metrics.flush_bytes", 256)
	v.SetDefault("metrics.buffer_size", 4096)
	v.SetDefault("metrics.max_batch_wait", 5*time.Second)
	v.SetDefault("metrics.sink_timeout", 10*time.Second)
	v.SetDefault("metrics.log_events", false)

	v.SetDefault("notify.backend", NotifyConsole)
	v.SetDefault("notify.telegram.token", "")
	v.SetDefault("notify.telegram.chat_id", 0)
	v.SetDefault("notify.telegram.api_url", "https://api.telegram.org")
	v.SetDefault("notify.pubsub.project_id", "")
	v.SetDefault("notify.pubsub.topic", "")

	v.SetDefault("tracing.service_name", "scrapewatch")
	v.SetDefault("tracing.otlp_endpoint", "")

	v.SetDefault("server.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.FetchTimeout <= 0 {
		return fmt.Errorf("scraper.fetch_timeout must be > 0")
	}
	if c.Scraper.SendTimeout <= 0 {
		return fmt.Errorf("scraper.send_timeout must be > 0")
	}
	if c.Scraper.Interval <= 0 {
		return fmt.Errorf("scraper.interval must be > 0")
	}
	if c.Scraper.RateLimitPerHost < 0 {
		return fmt.Errorf("scraper.rate_limit_per_host must be >= 0")
	}
	if c.Scraper.MaxBodySize < 0 {
		return fmt.Errorf("scraper.max_body_size must be >= 0")
	}
	if err := c.Cache.validate(); err != nil {
		return err
	}
	if c.Metrics.Path == "" {
		return fmt.Errorf("metrics.path is required")
	}
	if c.Metrics.FlushBytes <= 0 {
		return fmt.Errorf("metrics.flush_bytes must be > 0")
	}
	if c.Metrics.BufferSize <= 0 {
		return fmt.Errorf("metrics.buffer_size must be > 0")
	}
	if c.Metrics.MaxBatchWait <= 0 {
		return fmt.Errorf("metrics.max_batch_wait must be > 0")
	}
	if c.Metrics.SinkTimeout <= 0 {
		return fmt.Errorf("metrics.sink_timeout must be > 0")
	}
	return c.Notify.validate()
}

func (c CacheConfig) validate() error {
	switch c.Backend {
	case CacheSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("cache.sqlite.path is required for the sqlite backend")
		}
	case CachePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn is required for the postgres backend")
		}
	case CacheMemory:
	default:
		return fmt.Errorf("cache.backend %q is not one of sqlite, postgres, memory", c.Backend)
	}
	return nil
}

func (c NotifyConfig) validate() error {
	switch c.Backend {
	case NotifyConsole:
	case NotifyTelegram:
		if c.Telegram.Token == "" || c.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram.token and notify.telegram.chat_id are required for the telegram backend")
		}
	case NotifyPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			return fmt.Errorf("notify.pubsub.project_id and notify.pubsub.topic are required for the pubsub backend")
		}
	default:
		return fmt.Errorf("notify.backend %q is not one of console, telegram, pubsub", c.Backend)
	}
	return nil
}
