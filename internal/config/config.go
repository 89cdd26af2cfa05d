package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Universe struct {
		Symbols  []string `yaml:"symbols"`
		File     string   `yaml:"file"`
		URL      string   `yaml:"url"`
		Selector string   `yaml:"selector"`
		Column   int      `yaml:"column" validate:"gte=0"`
	} `yaml:"universe"`
	DataSource struct {
		Provider  string `yaml:"provider" validate:"oneof=marketstack yahoo alpaca mock"`
		BaseURL   string `yaml:"base_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"data_source"`
	Screen struct {
		EMAPeriod          int           `yaml:"ema_period" validate:"gte=1"`
		MinHistory         int           `yaml:"min_history" validate:"gte=1"`
		LookbackDays       int           `yaml:"lookback_days" validate:"gte=1"`
		Delay              time.Duration `yaml:"delay" validate:"gte=0"`
		Workers            int           `yaml:"workers" validate:"gte=1,lte=64"`
		Retries            int           `yaml:"retries" validate:"gte=1"`
		RetryDelay         time.Duration `yaml:"retry_delay" validate:"gte=0"`
		MaxCalendarGapDays int           `yaml:"max_calendar_gap_days" validate:"gte=0"`
		Timeout            time.Duration `yaml:"timeout" validate:"gte=0"`
	} `yaml:"screen"`
	Schedule struct {
		DailyCron string `yaml:"daily_cron" validate:"required"`
		Timezone  string `yaml:"timezone"`
	} `yaml:"schedule"`
	Output struct {
		Dir       string `yaml:"dir" validate:"required"`
		BaseName  string `yaml:"base_name" validate:"required"`
		StateFile string `yaml:"state_file" validate:"required"`
	} `yaml:"output"`
	Email struct {
		Enabled  bool     `yaml:"enabled"`
		Host     string   `yaml:"host"`
		Port     int      `yaml:"port" validate:"gte=0,lte=65535"`
		Username string   `yaml:"username"`
		Password string   `yaml:"password"`
		From     string   `yaml:"from" validate:"omitempty,email"`
		To       []string `yaml:"to" validate:"omitempty,dive,email"`
		TLS      string   `yaml:"tls" validate:"oneof=starttls implicit none"`
	} `yaml:"email"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		Driver      string `yaml:"driver" validate:"oneof=sqlite postgres none"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" validate:"oneof=console json"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	str("DATA_PROVIDER", &c.DataSource.Provider)
	str("DATA_BASE_URL", &c.DataSource.BaseURL)
	str("MARKETSTACK_API_KEY", &c.DataSource.APIKey)
	str("APCA_API_KEY_ID", &c.DataSource.APIKey)
	str("APCA_API_SECRET_KEY", &c.DataSource.APISecret)
	str("SMTP_HOST", &c.Email.Host)
	str("SMTP_USERNAME", &c.Email.Username)
	str("SMTP_PASSWORD", &c.Email.Password)
	str("EMAIL_FROM", &c.Email.From)
	str("CRON_DAILY", &c.Schedule.DailyCron)
	str("OUTPUT_DIR", &c.Output.Dir)
	str("SQLITE_PATH", &c.Database.SQLitePath)
	str("DATABASE_URL", &c.Database.PostgresDSN)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("HTTPS_PROXY", &c.Proxy)

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Universe.Symbols = splitList(v)
	}
	if v := os.Getenv("EMAIL_TO"); v != "" {
		c.Email.To = splitList(v)
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT: %w", err)
		}
		c.Email.Port = port
	}
	if v := os.Getenv("SCREEN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCREEN_WORKERS: %w", err)
		}
		c.Screen.Workers = n
	}
	if v := os.Getenv("SCREEN_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SCREEN_DELAY: %w", err)
		}
		c.Screen.Delay = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DataSource.Provider == "" {
		c.DataSource.Provider = "marketstack"
	}
	if c.Screen.EMAPeriod == 0 {
		c.Screen.EMAPeriod = 50
	}
	if c.Screen.MinHistory == 0 {
		c.Screen.MinHistory = c.Screen.EMAPeriod
	}
	if c.Screen.LookbackDays == 0 {
		c.Screen.LookbackDays = 120
	}
	if c.Screen.Delay == 0 {
		c.Screen.Delay = time.Second
	}
	if c.Screen.Workers == 0 {
		c.Screen.Workers = 1
	}
	if c.Screen.Retries == 0 {
		c.Screen.Retries = 2
	}
	if c.Screen.RetryDelay == 0 {
		c.Screen.RetryDelay = 2 * time.Second
	}
	if c.Screen.Timeout == 0 {
		c.Screen.Timeout = 30 * time.Minute
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 0 17 * * 1-5"
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "data/reports"
	}
	if c.Output.BaseName == "" {
		c.Output.BaseName = "ema50_screen"
	}
	if c.Output.StateFile == "" {
		c.Output.StateFile = "data/run_state.json"
	}
	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
	if c.Email.TLS == "" {
		c.Email.TLS = "starttls"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
		if c.Database.PostgresDSN != "" {
			c.Database.Driver = "postgres"
		}
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/ema_screener.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks field constraints and the settings that depend on each other.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(c.Universe.Symbols) == 0 && c.Universe.File == "" && c.Universe.URL == "" {
		return fmt.Errorf("universe: one of symbols, file or url is required")
	}
	if c.Universe.URL != "" && c.Universe.Selector == "" {
		return fmt.Errorf("universe.selector is required with universe.url")
	}
	switch c.DataSource.Provider {
	case "marketstack":
		if c.DataSource.APIKey == "" {
			return fmt.Errorf("data_source.api_key is required for marketstack")
		}
	case "alpaca":
		if c.DataSource.APIKey == "" || c.DataSource.APISecret == "" {
			return fmt.Errorf("data_source.api_key and api_secret are required for alpaca")
		}
	}
	if c.Screen.MinHistory < c.Screen.EMAPeriod {
		return fmt.Errorf("screen.min_history (%d) must be at least screen.ema_period (%d)",
			c.Screen.MinHistory, c.Screen.EMAPeriod)
	}
	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "" || len(c.Email.To) == 0) {
		return fmt.Errorf("email.host, email.from and email.to are required when email is enabled")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Database.Driver == "postgres" && c.Database.PostgresDSN == "" {
		return fmt.Errorf("database.postgres_dsn is required for the postgres driver")
	}
	return nil
}

// TelegramEnabled reports whether Telegram delivery is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Location returns the schedule time zone, defaulting to UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
