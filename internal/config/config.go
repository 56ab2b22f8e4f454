// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Billing settings
	CostPerThousandTokens string // default base rate, seeds pricing rules on first boot
	SignupBonus           string // credits granted to a new wallet ("0" disables)
	FlagCacheTTL          time.Duration

	// Stripe (top-ups disabled if unset)
	StripeSecretKey     string
	StripeWebhookSecret string
	CentsPerCredit      int64 // USD cents charged per credit on top-up

	// Security
	AdminSecret  string
	RateLimitRPS int

	// Observability
	OTLPEndpoint string // OTEL_EXPORTER_OTLP_ENDPOINT; empty disables tracing
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultCostPerK       = "0.002"
	DefaultSignupBonus    = "0"
	DefaultRateLimit      = 100
	DefaultFlagCacheTTL   = 5 * time.Second
	DefaultCentsPerCredit = int64(100)
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                  getEnv("PORT", DefaultPort),
		Env:                   getEnv("ENV", DefaultEnv),
		LogLevel:              getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:           os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		CostPerThousandTokens: getEnv("COST_PER_1K_TOKENS", DefaultCostPerK),
		SignupBonus:           getEnv("SIGNUP_BONUS_CREDITS", DefaultSignupBonus),
		FlagCacheTTL:          getEnvDuration("FLAG_CACHE_TTL", DefaultFlagCacheTTL),
		StripeSecretKey:       os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CentsPerCredit:        getEnvInt64("TOPUP_CENTS_PER_CREDIT", DefaultCentsPerCredit),
		AdminSecret:           os.Getenv("ADMIN_SECRET"),
		RateLimitRPS:          int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint:          os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}

	if c.StripeWebhookSecret != "" && c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required when STRIPE_WEBHOOK_SECRET is set")
	}

	if c.FlagCacheTTL < 0 {
		return fmt.Errorf("FLAG_CACHE_TTL must not be negative")
	}

	if c.CentsPerCredit <= 0 {
		return fmt.Errorf("TOPUP_CENTS_PER_CREDIT must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
