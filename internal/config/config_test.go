package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BOT_TOKEN", "123:abc")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, ModePolling, cfg.Telegram.Mode)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "helpdesk.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 20, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 2000, cfg.Tickets.MaxDescriptionLength)
	assert.Equal(t, 1000, cfg.Tickets.MaxCommentLength)
	assert.Equal(t, 10, cfg.Tickets.PageSize)
	assert.Equal(t, 7, cfg.Tickets.AutoCloseDays)
	assert.False(t, cfg.Redis.Enabled)

	interval, err := cfg.Scheduler.GetInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Hour, interval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("DB_PATH", "/data/tickets.db")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_PERIOD", "30")
	t.Setenv("AUTO_CLOSE_DAYS", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/data/tickets.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 5, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window, "bare number is seconds")
	assert.Equal(t, 3, cfg.Tickets.AutoCloseDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_DurationPeriod(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("RATE_LIMIT_PERIOD", "2m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.Window)
}

func TestLoad_DotEnv(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, os.WriteFile(".env", []byte("BOT_TOKEN=from-dotenv\nMAX_COMMENT_LENGTH=500\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("BOT_TOKEN")
		_ = os.Unsetenv("MAX_COMMENT_LENGTH")
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Telegram.Token)
	assert.Equal(t, 500, cfg.Tickets.MaxCommentLength)
}

func TestLoad_File(t *testing.T) {
	chdirTemp(t)
	path := writeConfig(t, `
telegram:
  token: "file-token"
  workers: 8
tickets:
  page_size: 5
scheduler:
  auto_close_interval: "30m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-token", cfg.Telegram.Token)
	assert.Equal(t, 8, cfg.Telegram.Workers)
	assert.Equal(t, 5, cfg.Tickets.PageSize)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BOT_TOKEN", "123:abc")

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MissingToken(t *testing.T) {
	chdirTemp(t)
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := Load("")
	assert.Error(t, err)
}

func validConfig() Config {
	return Config{
		Server:    ServerConfig{Enabled: true, Port: 8080},
		Telegram:  TelegramConfig{Token: "t", Mode: ModePolling, Workers: 1},
		Database:  DatabaseConfig{Driver: DriverSQLite, SQLite: SQLiteConfig{Path: "x.db"}},
		RateLimit: RateLimitConfig{MaxRequests: 20, Window: time.Minute},
		Tickets: TicketsConfig{
			MaxDescriptionLength: 2000,
			MaxCommentLength:     1000,
			PageSize:             10,
			AutoCloseDays:        7,
		},
		Scheduler: SchedulerConfig{AutoCloseInterval: "1h", Timezone: "UTC"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"webhook without url", func(c *Config) { c.Telegram.Mode = ModeWebhook }, true},
		{"webhook with url", func(c *Config) {
			c.Telegram.Mode = ModeWebhook
			c.Telegram.WebhookURL = "https://bot.example.com/telegram/webhook"
			c.Telegram.WebhookSecret = "s3cret"
		}, false},
		{"webhook without secret", func(c *Config) {
			c.Telegram.Mode = ModeWebhook
			c.Telegram.WebhookURL = "https://bot.example.com/telegram/webhook"
		}, true},
		{"webhook without server", func(c *Config) {
			c.Telegram.Mode = ModeWebhook
			c.Telegram.WebhookURL = "https://bot.example.com/telegram/webhook"
			c.Telegram.WebhookSecret = "s3cret"
			c.Server.Enabled = false
		}, true},
		{"unknown mode", func(c *Config) { c.Telegram.Mode = "push" }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"postgres without host", func(c *Config) { c.Database.Driver = DriverPostgres }, true},
		{"redis without host", func(c *Config) { c.Redis.Enabled = true }, true},
		{"mattermost without url", func(c *Config) { c.Mattermost.Enabled = true }, true},
		{"zero rate limit", func(c *Config) { c.RateLimit.MaxRequests = 0 }, true},
		{"description max below min", func(c *Config) { c.Tickets.MaxDescriptionLength = 5 }, true},
		{"zero auto close days", func(c *Config) { c.Tickets.AutoCloseDays = 0 }, true},
		{"interval too short", func(c *Config) { c.Scheduler.AutoCloseInterval = "10s" }, true},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Token = "secret"
	cfg.Redis.Password = "pw"

	redacted := cfg.Redacted()
	assert.Equal(t, "********", redacted.Telegram.Token)
	assert.Equal(t, "********", redacted.Redis.Password)
	assert.Empty(t, redacted.Server.APIToken)
	assert.Equal(t, "secret", cfg.Telegram.Token, "original untouched")
}
