// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/fairshare/internal/logging"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Storage (both optional, in-memory if not set)
	DatabaseURL string // PostgreSQL: ledger + trust profiles
	RedisURL    string // Redis: trust profiles

	// Registry
	ViewersCSV  string
	CreatorsCSV string
	SeedHistory bool // Synthesize historical transactions when the ledger is empty

	// Risk
	Timezone       string // Ledger timestamps and "today" are evaluated in this zone
	RiskPolicyFile string // Optional YAML override of the default risk policy
	RandomSeed     int64  // 0 = seeded from the clock

	// HTTP
	RateLimitRPM int
	CORSOrigins  []string

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort        = "8080"
	DefaultEnv         = "development"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultTimezone    = "Asia/Singapore"
	DefaultViewersCSV  = "tiktok_viewers.csv"
	DefaultCreatorsCSV = "tiktok_creators.csv"
	DefaultRateLimit   = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", DefaultPort),
		Env:            getEnv("ENV", DefaultEnv),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:      getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ViewersCSV:     getEnv("VIEWERS_CSV", DefaultViewersCSV),
		CreatorsCSV:    getEnv("CREATORS_CSV", DefaultCreatorsCSV),
		SeedHistory:    getEnvBool("SEED_HISTORY", true),
		Timezone:       getEnv("TIMEZONE", DefaultTimezone),
		RiskPolicyFile: os.Getenv("RISK_POLICY_FILE"),
		RandomSeed:     getEnvInt64("RANDOM_SEED", 0),
		RateLimitRPM:   int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}

	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, staging or production, got %q", c.Env)
	}

	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.LogLevel)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}

	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}

	return nil
}

// Location returns the configured time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
