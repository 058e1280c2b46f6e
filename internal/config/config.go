// Package config handles application configuration loading and validation using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported values for enumerated settings.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Telegram   TelegramConfig   `mapstructure:"telegram" yaml:"telegram"`
	Mattermost MattermostConfig `mapstructure:"mattermost" yaml:"mattermost"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Tickets    TicketsConfig    `mapstructure:"tickets" yaml:"tickets"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Port        int    `mapstructure:"port" yaml:"port"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	APIToken    string `mapstructure:"api_token" yaml:"api_token"` // Bearer token for /api/v1, empty leaves /api/v1 unmounted
}

// TelegramConfig contains Bot API connection and update delivery settings.
type TelegramConfig struct {
	Token         string `mapstructure:"token" yaml:"token"`
	APIURL        string `mapstructure:"api_url" yaml:"api_url"`
	Mode          string `mapstructure:"mode" yaml:"mode"` // polling or webhook
	WebhookURL    string `mapstructure:"webhook_url" yaml:"webhook_url"`
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"`
	PollTimeout   int    `mapstructure:"poll_timeout" yaml:"poll_timeout"` // seconds
	Workers       int    `mapstructure:"workers" yaml:"workers"`
}

// MattermostConfig contains the staff channel webhook settings.
type MattermostConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Channel    string `mapstructure:"channel" yaml:"channel"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DatabaseConfig selects the ticket store backend.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver" yaml:"driver"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// SQLiteConfig contains the embedded database location.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	Database        string `mapstructure:"database" yaml:"database"`
	User            string `mapstructure:"user" yaml:"user"`
	Password        string `mapstructure:"password" yaml:"password"`
	SSLMode         string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// DSN returns the libpq style connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// URL returns the connection string in URL form, as expected by golang-migrate.
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisConfig contains Redis connection and pool settings.
// Redis is optional; without it rate limits, conversations and the polling offset live in memory.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	PoolSize int    `mapstructure:"pool_size" yaml:"pool_size"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// RateLimitConfig contains the per-user sliding window settings.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests" yaml:"max_requests"`
	Window      time.Duration `mapstructure:"window" yaml:"window"`
}

// TicketsConfig contains ticket validation, listing and expiry settings.
type TicketsConfig struct {
	MaxDescriptionLength int `mapstructure:"max_description_length" yaml:"max_description_length"`
	MaxCommentLength     int `mapstructure:"max_comment_length" yaml:"max_comment_length"`
	PageSize             int `mapstructure:"page_size" yaml:"page_size"`
	AutoCloseDays        int `mapstructure:"auto_close_days" yaml:"auto_close_days"`
}

// SchedulerConfig contains background job settings.
type SchedulerConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	AutoCloseInterval string `mapstructure:"auto_close_interval" yaml:"auto_close_interval"` // Go duration, run as "@every <interval>"
	Timezone          string `mapstructure:"timezone" yaml:"timezone"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus" yaml:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "production")

	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("telegram.mode", ModePolling)
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("telegram.workers", 4)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.sqlite.path", "helpdesk.db")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 10)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("rate_limit.max_requests", 20)
	v.SetDefault("rate_limit.window", "60s")

	v.SetDefault("tickets.max_description_length", 2000)
	v.SetDefault("tickets.max_comment_length", 1000)
	v.SetDefault("tickets.page_size", 10)
	v.SetDefault("tickets.auto_close_days", 7)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.auto_close_interval", "1h")
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads configuration from file and environment variables.
// An explicit configPath must exist; without one the file is optional and
// the environment (plus a local .env) is enough.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/judge-helpdesk/")
	}

	// Explicit bindings, names kept compatible with the deployments' existing .env files
	_ = v.BindEnv("server.enabled", "SERVER_ENABLED")
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")
	_ = v.BindEnv("server.api_token", "SERVER_API_TOKEN")

	// Telegram configuration
	_ = v.BindEnv("telegram.token", "BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram.api_url", "TELEGRAM_API_URL")
	_ = v.BindEnv("telegram.mode", "TELEGRAM_MODE")
	_ = v.BindEnv("telegram.webhook_url", "TELEGRAM_WEBHOOK_URL")
	_ = v.BindEnv("telegram.webhook_secret", "TELEGRAM_WEBHOOK_SECRET")
	_ = v.BindEnv("telegram.poll_timeout", "TELEGRAM_POLL_TIMEOUT")
	_ = v.BindEnv("telegram.workers", "TELEGRAM_WORKERS")

	// Mattermost configuration
	_ = v.BindEnv("mattermost.webhook_url", "MATTERMOST_WEBHOOK_URL")
	_ = v.BindEnv("mattermost.channel", "MATTERMOST_CHANNEL")
	_ = v.BindEnv("mattermost.enabled", "MATTERMOST_ENABLED")

	// Database configuration
	_ = v.BindEnv("database.driver", "DB_DRIVER")
	_ = v.BindEnv("database.sqlite.path", "DB_PATH")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("redis.host", "REDIS_HOST")
	_ = v.BindEnv("redis.port", "REDIS_PORT")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("redis.pool_size", "REDIS_POOL_SIZE")

	// Rate limiting
	_ = v.BindEnv("rate_limit.max_requests", "RATE_LIMIT_MAX_REQUESTS")
	_ = v.BindEnv("rate_limit.window", "RATE_LIMIT_PERIOD")

	// Tickets
	_ = v.BindEnv("tickets.max_description_length", "MAX_DESCRIPTION_LENGTH")
	_ = v.BindEnv("tickets.max_comment_length", "MAX_COMMENT_LENGTH")
	_ = v.BindEnv("tickets.page_size", "TICKETS_PAGE_SIZE")
	_ = v.BindEnv("tickets.auto_close_days", "AUTO_CLOSE_DAYS")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.auto_close_interval", "SCHEDULER_AUTO_CLOSE_INTERVAL")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	// Metrics
	_ = v.BindEnv("metrics.prometheus.enabled", "METRICS_ENABLED")
	_ = v.BindEnv("metrics.prometheus.path", "METRICS_PATH")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// RATE_LIMIT_PERIOD has historically been a bare number of seconds
	if raw := v.GetString("rate_limit.window"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil {
			v.Set("rate_limit.window", time.Duration(secs)*time.Second)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadDotEnv populates the process environment from a .env file when one exists.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	switch c.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if c.Telegram.WebhookURL == "" {
			return fmt.Errorf("telegram.webhook_url is required in webhook mode")
		}
		if c.Telegram.WebhookSecret == "" {
			return fmt.Errorf("telegram.webhook_secret is required in webhook mode")
		}
		if !c.Server.Enabled {
			return fmt.Errorf("server must be enabled in webhook mode")
		}
	default:
		return fmt.Errorf("telegram.mode must be %q or %q, got %q", ModePolling, ModeWebhook, c.Telegram.Mode)
	}
	if c.Telegram.Workers < 1 {
		return fmt.Errorf("telegram.workers must be at least 1")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case DriverPostgres:
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return fmt.Errorf("redis.host is required when redis is enabled")
	}
	if c.Mattermost.Enabled && c.Mattermost.WebhookURL == "" {
		return fmt.Errorf("mattermost.webhook_url is required when mattermost is enabled")
	}

	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("rate_limit.max_requests must be at least 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}

	if c.Tickets.MaxDescriptionLength < MinDescriptionLength {
		return fmt.Errorf("tickets.max_description_length must be at least %d", MinDescriptionLength)
	}
	if c.Tickets.MaxCommentLength < MinCommentLength {
		return fmt.Errorf("tickets.max_comment_length must be at least %d", MinCommentLength)
	}
	if c.Tickets.PageSize < 1 {
		return fmt.Errorf("tickets.page_size must be at least 1")
	}
	if c.Tickets.AutoCloseDays < 1 {
		return fmt.Errorf("tickets.auto_close_days must be at least 1")
	}

	if _, err := c.Scheduler.GetInterval(); err != nil {
		return err
	}
	if _, err := c.Scheduler.GetLocation(); err != nil {
		return fmt.Errorf("invalid scheduler.timezone: %w", err)
	}

	return nil
}

// Fixed lower bounds on user supplied text.
const (
	MinDescriptionLength = 10
	MinCommentLength     = 3
)

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// GetInterval parses the auto-close sweep interval.
func (c *SchedulerConfig) GetInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.AutoCloseInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid scheduler.auto_close_interval %q: %w", c.AutoCloseInterval, err)
	}
	if d < time.Minute {
		return 0, fmt.Errorf("scheduler.auto_close_interval must be at least 1m, got %s", d)
	}
	return d, nil
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.Telegram.Token = mask(c.Telegram.Token)
	c.Telegram.WebhookSecret = mask(c.Telegram.WebhookSecret)
	c.Server.APIToken = mask(c.Server.APIToken)
	c.Database.Postgres.Password = mask(c.Database.Postgres.Password)
	c.Redis.Password = mask(c.Redis.Password)
	c.Mattermost.WebhookURL = mask(c.Mattermost.WebhookURL)
	return c
}
