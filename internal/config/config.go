/**
 * @description
 * Configuration loader for the Papertrade Backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 *
 * @notes
 * - Fails fast if critical variables (Database URL, JWT secret) are missing.
 * - Uses a Singleton-like pattern where Load() returns a Config struct.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	MarketData MarketDataConfig
	Mail       MailConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development", "test" or "production"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// AuthConfig holds JWT signing settings
type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// MarketDataConfig holds the upstream quote provider settings
type MarketDataConfig struct {
	BaseURL string
	Timeout time.Duration
}

// MailConfig holds SMTP settings for verification emails
type MailConfig struct {
	SMTPHost    string
	SMTPPort    string
	From        string
	Password    string
	FrontendURL string // Base URL used to build verification links
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (prod might inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  time.Duration(getEnvAsInt("JWT_ACCESS_TTL_MINUTES", 15)) * time.Minute,
			RefreshTokenTTL: time.Duration(getEnvAsInt("JWT_REFRESH_TTL_HOURS", 168)) * time.Hour,
		},
		MarketData: MarketDataConfig{
			BaseURL: getEnv("MARKET_DATA_URL", "https://query2.finance.yahoo.com"),
			Timeout: time.Duration(getEnvAsInt("MARKET_DATA_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Mail: MailConfig{
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnv("SMTP_PORT", "587"),
			From:        getEnv("SMTP_FROM", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		if cfg.Server.Env == "production" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		fmt.Println("Warning: JWT_SECRET is missing. Issued tokens will use an empty key.")
	}
	if cfg.Mail.SMTPHost == "" && cfg.Server.Env == "production" {
		fmt.Println("Warning: SMTP_HOST is missing. Verification emails will be logged instead of sent.")
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
