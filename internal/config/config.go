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
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory ledger if not set)

	// Security
	AdminSecret  string // Secret for the admin control plane
	RateLimitRPM int    // Transport-level per-IP requests per minute

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)

	// Governance pool defaults. Admin calls may replace them at runtime.
	DailyLimitPerSuspiciousUser  int
	DailyLimitPerNewUser         int
	DailyLimitPerEstablishedUser int
	DailyCollectiveLimit         int
	WeeklyCollectiveLimit        int
	MonthlyCollectiveLimit       int
	FairSharePercentage          float64
	EmergencyReservePercentage   float64
	CooldownSeconds              int
	HourlyVelocityLimit          int
	IPDailyLimit                 int

	// Maintenance
	SweepInterval time.Duration
}

// Defaults
const (
	DefaultPort      = "8080"
	DefaultEnv       = "development"
	DefaultLogLevel  = "info"
	DefaultRateLimit = 120

	DefaultDailySuspicious  = 1
	DefaultDailyNew         = 3
	DefaultDailyEstablished = 10
	DefaultDailyCollective  = 200
	DefaultWeeklyCollective = 1000
	DefaultMonthCollective  = 3500
	DefaultFairShare        = 0.10
	DefaultReserve          = 0.20
	DefaultCooldownSeconds  = 10
	DefaultHourlyVelocity   = 20
	DefaultIPDaily          = 50
)

// DefaultSweepInterval is how often the maintenance sweeper runs.
const DefaultSweepInterval = 6 * time.Hour

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:  os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		AdminSecret:  os.Getenv("ADMIN_SECRET"),
		RateLimitRPM: getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		DailyLimitPerSuspiciousUser:  getEnvInt("DAILY_LIMIT_SUSPICIOUS", DefaultDailySuspicious),
		DailyLimitPerNewUser:         getEnvInt("DAILY_LIMIT_NEW", DefaultDailyNew),
		DailyLimitPerEstablishedUser: getEnvInt("DAILY_LIMIT_ESTABLISHED", DefaultDailyEstablished),
		DailyCollectiveLimit:         getEnvInt("DAILY_COLLECTIVE_LIMIT", DefaultDailyCollective),
		WeeklyCollectiveLimit:        getEnvInt("WEEKLY_COLLECTIVE_LIMIT", DefaultWeeklyCollective),
		MonthlyCollectiveLimit:       getEnvInt("MONTHLY_COLLECTIVE_LIMIT", DefaultMonthCollective),
		FairSharePercentage:          getEnvFloat("FAIR_SHARE_PERCENTAGE", DefaultFairShare),
		EmergencyReservePercentage:   getEnvFloat("EMERGENCY_RESERVE_PERCENTAGE", DefaultReserve),
		CooldownSeconds:              getEnvInt("COOLDOWN_SECONDS", DefaultCooldownSeconds),
		HourlyVelocityLimit:          getEnvInt("HOURLY_VELOCITY_LIMIT", DefaultHourlyVelocity),
		IPDailyLimit:                 getEnvInt("IP_DAILY_LIMIT", DefaultIPDaily),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configured limits are coherent.
func (c *Config) Validate() error {
	if c.FairSharePercentage <= 0 || c.FairSharePercentage > 1 {
		return fmt.Errorf("FAIR_SHARE_PERCENTAGE must be in (0, 1], got %v", c.FairSharePercentage)
	}
	if c.EmergencyReservePercentage < 0 || c.EmergencyReservePercentage >= 1 {
		return fmt.Errorf("EMERGENCY_RESERVE_PERCENTAGE must be in [0, 1), got %v", c.EmergencyReservePercentage)
	}
	if c.DailyCollectiveLimit <= 0 || c.WeeklyCollectiveLimit <= 0 || c.MonthlyCollectiveLimit <= 0 {
		return fmt.Errorf("collective limits must be strictly positive")
	}
	if c.DailyLimitPerSuspiciousUser > c.DailyLimitPerNewUser ||
		c.DailyLimitPerNewUser > c.DailyLimitPerEstablishedUser {
		return fmt.Errorf("per-tier daily limits must be ordered suspicious <= new <= established")
	}
	if c.CooldownSeconds < 0 {
		return fmt.Errorf("COOLDOWN_SECONDS must not be negative")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
