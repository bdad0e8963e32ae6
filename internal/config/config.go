package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	RunSchedule string // cron expression with a seconds field
	RunTimeout  time.Duration

	// Reddit account the bot moderates with
	RedditUsername     string
	RedditPassword     string
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string

	// Persistence configuration
	DatabaseDriver string // postgres, mysql, sqlite or memory
	DatabaseDSN    string
	RulesFile      string // imported at startup when set

	// Scan configuration
	StreamLimit   int
	ReportBacklog time.Duration
	WriteDelay    time.Duration
	DryRun        bool

	// Lookup caches
	MemeCacheTTL     time.Duration
	AccountCacheTTL  time.Duration
	AccountCacheSize int

	// Azure Storage configuration
	StorageAccount   string
	StorageContainer string
	ArchiveRetention time.Duration

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
}

var databaseDrivers = []string{"postgres", "mysql", "sqlite", "memory"}

// ScheduleParser accepts RUN_SCHEDULE expressions, seconds field first
var ScheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Debug:       getBoolEnv("DEBUG", false),
		RunSchedule: getEnv("RUN_SCHEDULE", "0 */5 * * * *"),
		RunTimeout:  getDurationEnv("RUN_TIMEOUT", 30*time.Minute),

		RedditUsername:     getEnv("REDDIT_USERNAME", ""),
		RedditPassword:     getEnv("REDDIT_PASSWORD", ""),
		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUserAgent:    getEnv("REDDIT_USER_AGENT", ""),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseDSN:    getEnv("DATABASE_DSN", ""),
		RulesFile:      getEnv("RULES_FILE", ""),

		StreamLimit:   getIntEnv("STREAM_LIMIT", 1000),
		ReportBacklog: getDurationEnv("REPORT_BACKLOG", 48*time.Hour),
		WriteDelay:    getDurationEnv("WRITE_DELAY", 2*time.Second),
		DryRun:        getBoolEnv("DRY_RUN", false),

		MemeCacheTTL:     getDurationEnv("MEME_CACHE_TTL", 24*time.Hour),
		AccountCacheTTL:  getDurationEnv("ACCOUNT_CACHE_TTL", 10*time.Minute),
		AccountCacheSize: getIntEnv("ACCOUNT_CACHE_SIZE", 5000),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "modbot-runs"),
		ArchiveRetention: getDurationEnv("ARCHIVE_RETENTION", 30*24*time.Hour),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := ScheduleParser.Parse(c.RunSchedule); err != nil {
		return fmt.Errorf("RUN_SCHEDULE is not a valid cron expression: %w", err)
	}

	if c.RedditUsername == "" || c.RedditPassword == "" || c.RedditClientID == "" || c.RedditClientSecret == "" {
		return fmt.Errorf("REDDIT_USERNAME, REDDIT_PASSWORD, REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required")
	}

	if !slices.Contains(databaseDrivers, c.DatabaseDriver) {
		return fmt.Errorf("DATABASE_DRIVER must be one of %v", databaseDrivers)
	}
	if c.DatabaseDriver != "memory" && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required for the %s driver", c.DatabaseDriver)
	}

	if c.StreamLimit <= 0 {
		return fmt.Errorf("STREAM_LIMIT must be positive")
	}
	if c.ReportBacklog <= 0 {
		return fmt.Errorf("REPORT_BACKLOG must be positive")
	}
	if c.WriteDelay < 0 {
		return fmt.Errorf("WRITE_DELAY must not be negative")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
