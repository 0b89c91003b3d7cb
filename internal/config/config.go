// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server binary needs to start.
type Config struct {
	// Port the HTTP server listens on.
	Port int

	// DBPath is the SQLite database file.
	DBPath string

	// JWTSecret signs session tokens. Required.
	JWTSecret string

	// TokenTTL is how long session tokens stay valid.
	TokenTTL time.Duration

	// LogLevel is debug, info, warn or error.
	LogLevel string

	// RateTTL bounds how long a fetched exchange rate is reused.
	RateTTL time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first; missing files are fine.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:      8080,
		DBPath:    getEnv("DB_PATH", "./data/divvy.db"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		TokenTTL:  24 * time.Hour,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		RateTTL:   time.Hour,
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_TTL %q: %w", v, err)
		}
		cfg.TokenTTL = ttl
	}
	if v := os.Getenv("RATE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_TTL %q: %w", v, err)
		}
		cfg.RateTTL = ttl
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
