package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	LogLevel    string
	Environment string
	HTTPAddr    string

	CronSpecReportSweep     string // Due report configs
	CronSpecScheduleSweep   string // Due partner report schedules
	CronSpecEscalationSweep string // Overdue report requests
	SweepTimeout            time.Duration

	TokenExpiryDays int
	PortalBaseURL   string

	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	EmailRatePerSec float64

	SlackToken   string
	SlackChannel string

	TelegramToken   string // Optional; enables the admin bot
	AdminTelegramID int64
}

// EmailEnabled reports whether SMTP delivery is configured.
func (c *AppConfig) EmailEnabled() bool { return c.SMTPHost != "" }

// SlackEnabled reports whether sweep failures are posted to Slack.
func (c *AppConfig) SlackEnabled() bool { return c.SlackToken != "" && c.SlackChannel != "" }

// TelegramEnabled reports whether the admin bot should be started.
func (c *AppConfig) TelegramEnabled() bool { return c.TelegramToken != "" }

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	cfg.DBMaxOpenConns, err = strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}
	cfg.DBMaxIdleConns, err = strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}
	cfg.DBConnMaxLifetime, err = time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.CronSpecReportSweep = getEnv("CRON_SPEC_REPORT_SWEEP", "*/5 * * * *")         // Default: every 5 minutes
	cfg.CronSpecScheduleSweep = getEnv("CRON_SPEC_SCHEDULE_SWEEP", "*/5 * * * *")     // Default: every 5 minutes
	cfg.CronSpecEscalationSweep = getEnv("CRON_SPEC_ESCALATION_SWEEP", "0 * * * *") // Default: hourly

	cfg.SweepTimeout, err = time.ParseDuration(getEnv("SWEEP_TIMEOUT", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_TIMEOUT: %w", err)
	}

	cfg.TokenExpiryDays, err = strconv.Atoi(getEnv("TOKEN_EXPIRY_DAYS", "90"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_EXPIRY_DAYS: %w", err)
	}
	cfg.PortalBaseURL = getEnv("PORTAL_BASE_URL", "http://localhost:8080")

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if cfg.EmailEnabled() && cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("SMTP_FROM is not set")
	}
	cfg.EmailRatePerSec, err = strconv.ParseFloat(getEnv("EMAIL_RATE_PER_SEC", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid EMAIL_RATE_PER_SEC: %w", err)
	}

	cfg.SlackToken = os.Getenv("SLACK_TOKEN")
	cfg.SlackChannel = os.Getenv("SLACK_CHANNEL")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramEnabled() {
		adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
		if adminIDStr == "" {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
		}
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
