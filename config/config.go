package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Auth       AuthConfig
	Zoom       ZoomConfig
	Eventbrite EventbriteConfig
	YouTube    YouTubeConfig
	Pipeline   PipelineConfig
	AWS        AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. An empty Addr and URL disables Redis.
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis server is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" || c.Addr != "" }

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AuthConfig holds Google sign-in settings.
type AuthConfig struct {
	GoogleClientID string
	AllowedDomain  string
}

// ZoomConfig holds Server-to-Server OAuth credentials.
type ZoomConfig struct {
	AccountID     string
	ClientID      string
	ClientSecret  string
	AuthURL       string
	BaseURL       string
	RatePerSecond float64
}

// EventbriteConfig holds the private token.
type EventbriteConfig struct {
	Token   string
	BaseURL string
}

// YouTubeConfig holds publish-target settings.
type YouTubeConfig struct {
	TokenFile      string
	ChannelID      string
	CheckExisting  bool
	CacheFreshness time.Duration
}

// PipelineConfig tunes the processing runs.
type PipelineConfig struct {
	Workers           int
	QueueSize         int
	DownloadDir       string
	Timezone          string
	DownloadRetention time.Duration
	ProgressRetention time.Duration
	// ServerWorkers runs the worker pool inside the API process.
	ServerWorkers bool
}

// Location loads the configured zone, falling back to UTC.
func (c PipelineConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

// AWSConfig holds AWS credentials and the recordings bucket. An empty bucket disables archiving.
type AWSConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	RecordingsBucket string
	Endpoint         string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	credentials := getEnv("CREDENTIALS_FOLDER", "./credentials")
	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "recbridge"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Auth: AuthConfig{
			GoogleClientID: getEnv("GOOGLE_SSO_CLIENT_ID", ""),
			AllowedDomain:  getEnv("ALLOWED_DOMAIN", ""),
		},
		Zoom: ZoomConfig{
			AccountID:     getEnv("ZOOM_ACCOUNT_ID", ""),
			ClientID:      getEnv("ZOOM_API_KEY", ""),
			ClientSecret:  getEnv("ZOOM_API_SECRET", ""),
			AuthURL:       getEnv("ZOOM_AUTH_URL", ""),
			BaseURL:       getEnv("ZOOM_BASE_URL", ""),
			RatePerSecond: getEnvFloat("ZOOM_RATE_PER_SECOND", 10),
		},
		Eventbrite: EventbriteConfig{
			Token:   getEnv("EVENTBRITE_PRIVATE_TOKEN", ""),
			BaseURL: getEnv("EVENTBRITE_BASE_URL", ""),
		},
		YouTube: YouTubeConfig{
			TokenFile:      getEnv("YOUTUBE_TOKEN_FILE", filepath.Join(credentials, "youtube_token.json")),
			ChannelID:      getEnv("YOUTUBE_CHANNEL_ID", ""),
			CheckExisting:  getEnvBool("CHECK_EXISTING_VIDEOS", true),
			CacheFreshness: time.Duration(getEnvInt("VIDEO_CACHE_FRESHNESS_HOURS", 24)) * time.Hour,
		},
		Pipeline: PipelineConfig{
			Workers:           getEnvInt("PIPELINE_WORKERS", 4),
			QueueSize:         getEnvInt("PIPELINE_QUEUE_SIZE", 64),
			DownloadDir:       getEnv("DOWNLOAD_FOLDER", "./downloads"),
			Timezone:          getEnv("PIPELINE_TIMEZONE", "UTC"),
			DownloadRetention: time.Duration(getEnvInt("DOWNLOAD_RETENTION_DAYS", 7)) * 24 * time.Hour,
			ProgressRetention: time.Duration(getEnvInt("PROGRESS_RETENTION_HOURS", 24)) * time.Hour,
			ServerWorkers:     getEnvBool("PIPELINE_SERVER_WORKERS", true),
		},
		AWS: AWSConfig{
			Region:           getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket: getEnv("AWS_S3_RECORDINGS_BUCKET", ""),
			Endpoint:         getEnv("AWS_S3_ENDPOINT", ""),
		},
	}
	if _, err := time.LoadLocation(cfg.Pipeline.Timezone); err != nil {
		return nil, fmt.Errorf("PIPELINE_TIMEZONE: %w", err)
	}
	return cfg, nil
}

// Validate lists every required setting that is missing. The service still
// starts; affected endpoints fail until the setting is provided.
func (c *Config) Validate() []string {
	required := []struct {
		name, value string
	}{
		{"ZOOM_API_KEY", c.Zoom.ClientID},
		{"ZOOM_API_SECRET", c.Zoom.ClientSecret},
		{"ZOOM_ACCOUNT_ID", c.Zoom.AccountID},
		{"EVENTBRITE_PRIVATE_TOKEN", c.Eventbrite.Token},
		{"GOOGLE_SSO_CLIENT_ID", c.Auth.GoogleClientID},
		{"ALLOWED_DOMAIN", c.Auth.AllowedDomain},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, "Missing required configuration: "+r.name)
		}
	}
	if c.JWT.Secret == "change-me-in-production" {
		missing = append(missing, "JWT_SECRET is using the default value")
	}
	return missing
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
