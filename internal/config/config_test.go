package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDailyNew, cfg.DailyLimitPerNewUser)
	assert.Equal(t, DefaultDailyCollective, cfg.DailyCollectiveLimit)
	assert.Equal(t, DefaultFairShare, cfg.FairSharePercentage)
	assert.Equal(t, DefaultCooldownSeconds, cfg.CooldownSeconds)
	assert.Equal(t, 6*time.Hour, cfg.SweepInterval)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "DAILY_LIMIT_NEW", "5")
	setEnv(t, "SWEEP_INTERVAL", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.DailyLimitPerNewUser)
	assert.Equal(t, 30*time.Minute, cfg.SweepInterval)
}

func TestLoad_ProductionRequiresAdminSecret(t *testing.T) {
	setEnv(t, "ENV", "production")
	setEnv(t, "ADMIN_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_SECRET")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Env:                          "development",
			DailyLimitPerSuspiciousUser:  1,
			DailyLimitPerNewUser:         3,
			DailyLimitPerEstablishedUser: 10,
			DailyCollectiveLimit:         200,
			WeeklyCollectiveLimit:        1000,
			MonthlyCollectiveLimit:       3500,
			FairSharePercentage:          0.1,
			EmergencyReservePercentage:   0.2,
			CooldownSeconds:              10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"fair share zero", func(c *Config) { c.FairSharePercentage = 0 }, "FAIR_SHARE_PERCENTAGE"},
		{"fair share above one", func(c *Config) { c.FairSharePercentage = 1.5 }, "FAIR_SHARE_PERCENTAGE"},
		{"reserve at one", func(c *Config) { c.EmergencyReservePercentage = 1 }, "EMERGENCY_RESERVE_PERCENTAGE"},
		{"zero collective limit", func(c *Config) { c.DailyCollectiveLimit = 0 }, "strictly positive"},
		{"tiers out of order", func(c *Config) { c.DailyLimitPerNewUser = 20 }, "ordered"},
		{"negative cooldown", func(c *Config) { c.CooldownSeconds = -1 }, "COOLDOWN_SECONDS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
