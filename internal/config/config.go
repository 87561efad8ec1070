package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Database
	DatabasePath string

	// Job definitions directory
	ConfigDir string

	// Logging
	LogLevel  string
	LogFormat string // "text" or "json"

	// Telegram Bot API
	TelegramBotToken   string
	TelegramAPIURL     string
	TelegramRateLimit  time.Duration // minimum spacing between requests
	TelegramMaxRetries int

	// HTTP endpoints for serve mode, empty disables them
	HTTPAddr string

	// Notification settings
	NotifyChatID string

	// Staging root for remote sources
	SessionsDir string

	// Schedule for jobs that do not set one
	DefaultSchedule string
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:     getEnv("DATABASE_PATH", "data/autoposter.db"),
		ConfigDir:        getEnv("CONFIG_DIR", "config"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		HTTPAddr:         getEnv("HTTP_ADDR", ""),
		NotifyChatID:     getEnv("NOTIFY_CHAT_ID", ""),
		SessionsDir:      getEnv("SESSIONS_DIR", "data/staging"),
		DefaultSchedule:  getEnv("DEFAULT_SCHEDULE", "@every 1h"),
	}

	// Parse durations
	var err error
	cfg.TelegramRateLimit, err = time.ParseDuration(getEnv("TELEGRAM_RATE_LIMIT", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_RATE_LIMIT: %w", err)
	}

	// Parse integers
	retries, err := strconv.Atoi(getEnv("TELEGRAM_MAX_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_MAX_RETRIES: %w", err)
	}
	if retries < 0 {
		return nil, fmt.Errorf("invalid TELEGRAM_MAX_RETRIES: %d is negative", retries)
	}
	cfg.TelegramMaxRetries = retries

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.ConfigDir == "" {
		return fmt.Errorf("CONFIG_DIR is required")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be 'text' or 'json')", c.LogFormat)
	}
	return nil
}

// ValidateForPosting checks configuration needed for posting.
func (c *Config) ValidateForPosting() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required for posting")
	}
	if c.TelegramAPIURL == "" {
		return fmt.Errorf("TELEGRAM_API_URL is required for posting")
	}
	return nil
}

// ValidateForServe checks all configuration needed for serve mode.
func (c *Config) ValidateForServe() error {
	if err := c.ValidateForPosting(); err != nil {
		return err
	}
	if c.DefaultSchedule == "" {
		return fmt.Errorf("DEFAULT_SCHEDULE is required for serve")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
