package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment driven settings for the API server.
type Config struct {
	Env            string
	Host           string
	Port           string
	AllowedOrigins []string
	LogLevel       string

	JWTSecret string

	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Email    EmailConfig
	Watch    WatchConfig
	Report   ReportConfig
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	TimeZone        string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // seconds
	ConnMaxIdleTime int // seconds
	RunMigrations   bool
}

// RedisConfig contains the optional Redis cache settings. An empty address
// disables caching entirely.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig contains Google Cloud Storage settings for therapy videos.
type StorageConfig struct {
	Bucket          string
	CredentialsFile string
}

// EmailConfig contains SMTP settings for the daily summary mailer.
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// WatchConfig tunes the watch-integrity engine.
type WatchConfig struct {
	SessionIdleTTL  time.Duration
	BroadcastBuffer int
}

// ReportConfig controls the daily completion summary job.
type ReportConfig struct {
	Enabled    bool
	Interval   time.Duration
	Recipients []string
}

// Load builds a Config from environment variables with sensible defaults.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Env:       getEnv("VRT_SERVER_ENV", "development"),
		Host:      getEnv("VRT_SERVER_HOST", "0.0.0.0"),
		Port:      getEnv("VRT_SERVER_PORT", "8080"),
		LogLevel:  getEnv("VRT_LOG_LEVEL", "info"),
		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-me"),
	}

	cfg.AllowedOrigins = splitAndTrim(os.Getenv("VRT_ALLOWED_ORIGINS"))
	cfg.Database = loadDatabaseConfig()
	cfg.Redis = RedisConfig{
		Addr:     getEnv("VRT_REDIS_ADDR", ""),
		Password: os.Getenv("VRT_REDIS_PASSWORD"),
		DB:       getEnvAsInt("VRT_REDIS_DB", 0),
	}
	cfg.Storage = StorageConfig{
		Bucket:          getEnv("VRT_GCS_BUCKET", "vr_therapy_videos"),
		CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
	}
	cfg.Email = EmailConfig{
		Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		Port:     getEnv("SMTP_PORT", "587"),
		Username: getEnv("SMTP_USER", ""),
		Password: getEnv("SMTP_PASS", ""),
		From:     getEnv("SMTP_FROM", "noreply@example.com"),
	}
	cfg.Watch = WatchConfig{
		SessionIdleTTL:  time.Duration(getEnvAsInt("VRT_SESSION_IDLE_TTL_MINUTES", 360)) * time.Minute,
		BroadcastBuffer: getEnvAsInt("VRT_BROADCAST_BUFFER", 64),
	}
	cfg.Report = ReportConfig{
		Enabled:    getEnvAsBool("VRT_DAILY_REPORT_ENABLED", false),
		Interval:   time.Duration(getEnvAsInt("VRT_DAILY_REPORT_INTERVAL_MINUTES", 1440)) * time.Minute,
		Recipients: splitAndTrim(os.Getenv("VRT_DAILY_REPORT_RECIPIENTS")),
	}

	return cfg, nil
}

// ServerAddress joins the host and port into a listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsProduction reports whether the app is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// DSN builds a PostgreSQL DSN for gorm.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
		d.TimeZone,
	)
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnv("VRT_DB_HOST", "127.0.0.1"),
		Port:            getEnv("VRT_DB_PORT", "5432"),
		User:            getEnv("VRT_DB_USER", "postgres"),
		Password:        os.Getenv("VRT_DB_PASSWORD"),
		Name:            getEnv("VRT_DB_NAME", "vrtherapy"),
		SSLMode:         getEnv("VRT_DB_SSLMODE", "disable"),
		TimeZone:        getEnv("VRT_DB_TIMEZONE", "UTC"),
		MaxIdleConns:    getEnvAsInt("VRT_DB_MAX_IDLE_CONNS", 5),
		MaxOpenConns:    getEnvAsInt("VRT_DB_MAX_OPEN_CONNS", 20),
		ConnMaxLifetime: getEnvAsInt("VRT_DB_CONN_MAX_LIFETIME", 1800),
		ConnMaxIdleTime: getEnvAsInt("VRT_DB_CONN_MAX_IDLE_TIME", 300),
		RunMigrations:   getEnvAsBool("VRT_DB_RUN_MIGRATIONS", false),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return fallback
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ';'
	})

	var cleaned []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	return cleaned
}
