package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	apperrors "cdr-graph/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port     string
	Env      string
	LogLevel string

	// Neo4j
	Neo4jURI            string
	Neo4jUser           string
	Neo4jPassword       string
	Neo4jDatabase       string
	Neo4jMaxPoolSize    int
	Neo4jConnectTimeout time.Duration

	// Ingestion
	WriteTimeout     time.Duration // Per write-group deadline
	WriteConcurrency int           // Concurrent groups within one write phase
	ExtractWorkers   int
	MaxUploadBytes   int64
	SessionMaxAge    time.Duration

	// AI
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", ""),
		Neo4jURI:            getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:           getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:       getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:       getEnv("NEO4J_DATABASE", ""),
		Neo4jMaxPoolSize:    getEnvInt("NEO4J_MAX_POOL_SIZE", 50),
		Neo4jConnectTimeout: time.Duration(getEnvInt("NEO4J_CONNECT_TIMEOUT_SECONDS", 10)) * time.Second,
		WriteTimeout:        time.Duration(getEnvInt("WRITE_TIMEOUT_SECONDS", 60)) * time.Second,
		WriteConcurrency:    getEnvInt("WRITE_CONCURRENCY", 1),
		ExtractWorkers:      getEnvInt("EXTRACT_WORKERS", 4),
		MaxUploadBytes:      int64(getEnvInt("MAX_UPLOAD_MB", 50)) << 20,
		SessionMaxAge:       time.Duration(getEnvInt("SESSION_MAX_AGE_HOURS", 24)) * time.Hour,
		LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:           getEnv("LLM_API_KEY", ""),
		LLMModel:            getEnv("LLM_MODEL", "gpt-4o"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_URI")
	}
	if c.Neo4jUser == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_USER")
	}
	if c.Neo4jPassword == "" {
		return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
	}
	if c.WriteTimeout <= 0 {
		return apperrors.NewConfigValidationFailed("WRITE_TIMEOUT_SECONDS", "must be positive")
	}
	if c.WriteConcurrency <= 0 {
		return apperrors.NewConfigValidationFailed("WRITE_CONCURRENCY", "must be positive")
	}
	if c.ExtractWorkers <= 0 {
		return apperrors.NewConfigValidationFailed("EXTRACT_WORKERS", "must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return apperrors.NewConfigValidationFailed("MAX_UPLOAD_MB", "must be positive")
	}
	if c.SessionMaxAge <= 0 {
		return apperrors.NewConfigValidationFailed("SESSION_MAX_AGE_HOURS", "must be positive")
	}
	// LLM settings are optional; AI endpoints are disabled without a key
	return nil
}

// AIEnabled reports whether an LLM provider is configured
func (c *Config) AIEnabled() bool {
	return c.LLMAPIKey != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
