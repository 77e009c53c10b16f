package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	S3         S3Config
	Photos     PhotoConfig
	Log        LogConfig
	Repository string // "postgres" or "memory"
	// DemoPassword seeds the demo login accounts
	DemoPassword string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port       string
	InstanceID string
}

// DatabaseConfig holds Postgres connection details
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds Redis connection details. An empty host disables the event bus.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// S3Config holds S3 connection details. An empty bucket keeps photos in memory.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for S3-compatible services like MinIO
}

// PhotoConfig holds the upload limits enforced by the photo endpoint
type PhotoConfig struct {
	MaxCount     int
	MaxBytes     int64
	AllowedTypes []string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	maxCount, err := strconv.Atoi(getEnv("PHOTO_MAX_COUNT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid PHOTO_MAX_COUNT: %w", err)
	}
	maxBytes, err := strconv.ParseInt(getEnv("PHOTO_MAX_BYTES", "2097152"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PHOTO_MAX_BYTES: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:       getEnv("SERVER_PORT", "8080"),
			InstanceID: getEnv("INSTANCE_ID", "report-service-1"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "work_reports_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
			TTL:    ttl,
		},
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
		},
		Photos: PhotoConfig{
			MaxCount:     maxCount,
			MaxBytes:     maxBytes,
			AllowedTypes: splitList(getEnv("PHOTO_ALLOWED_TYPES", "image/jpeg,image/png")),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Repository:   strings.ToLower(getEnv("REPOSITORY_DRIVER", "postgres")),
		DemoPassword: getEnv("DEMO_PASSWORD", "password123"),
	}

	if cfg.Repository != "postgres" && cfg.Repository != "memory" {
		return nil, fmt.Errorf("REPOSITORY_DRIVER must be postgres or memory, got %q", cfg.Repository)
	}
	if cfg.Photos.MaxCount < 1 {
		return nil, fmt.Errorf("PHOTO_MAX_COUNT must be at least 1")
	}
	if cfg.S3.Bucket != "" && (cfg.S3.AccessKeyID == "" || cfg.S3.SecretAccessKey == "") {
		return nil, fmt.Errorf("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when S3_BUCKET is set")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
