package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	ServerPort string
	ServerHost string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisURL      string

	// Auth configuration
	JWTSecret     string
	DevMode       bool
	AppleBundleID string

	// Analysis dispatcher configuration
	AnalysisWorkers     int
	AnalysisQueueSize   int
	AnalysisMaxAttempts int
	AnalysisBackoffBase time.Duration
	AnalysisBackoffCap  time.Duration
	EngineTimeout       time.Duration
}

// LoadConfig creates a new Config instance from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "calorily"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisURL:      os.Getenv("REDIS_URL"),

		JWTSecret:     os.Getenv("JWT_SECRET"),
		DevMode:       getEnvBool("DEV_MODE", IsDevelopment()),
		AppleBundleID: os.Getenv("APPLE_BUNDLE_ID"),

		AnalysisWorkers:     getEnvInt("ANALYSIS_WORKERS", 4),
		AnalysisQueueSize:   getEnvInt("ANALYSIS_QUEUE_SIZE", 64),
		AnalysisMaxAttempts: getEnvInt("ANALYSIS_MAX_ATTEMPTS", 3),
		AnalysisBackoffBase: getEnvDuration("ANALYSIS_BACKOFF_BASE", time.Second),
		AnalysisBackoffCap:  getEnvDuration("ANALYSIS_BACKOFF_CAP", 15*time.Second),
		EngineTimeout:       getEnvDuration("ENGINE_TIMEOUT", 60*time.Second),
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ValidateConfig checks that required settings are present and sane
func ValidateConfig(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.AppleBundleID == "" && !cfg.DevMode {
		return fmt.Errorf("APPLE_BUNDLE_ID is required outside dev mode")
	}
	if cfg.AnalysisWorkers <= 0 {
		return fmt.Errorf("ANALYSIS_WORKERS must be positive")
	}
	if cfg.AnalysisMaxAttempts <= 0 {
		return fmt.Errorf("ANALYSIS_MAX_ATTEMPTS must be positive")
	}
	if cfg.AnalysisBackoffBase <= 0 || cfg.AnalysisBackoffCap < cfg.AnalysisBackoffBase {
		return fmt.Errorf("backoff cap must be at least the backoff base")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
