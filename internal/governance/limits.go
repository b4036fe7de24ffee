package governance

import (
	"fmt"
	"math"

	"github.com/clauselens/governor/internal/config"
)

// Limits is the process-wide, admin-mutable limits configuration. It is
// replaced wholesale on update; it is never deleted.
type Limits struct {
	DailyLimitPerSuspiciousUser  int     `json:"dailyLimitPerSuspiciousUser"`
	DailyLimitPerNewUser         int     `json:"dailyLimitPerNewUser"`
	DailyLimitPerEstablishedUser int     `json:"dailyLimitPerEstablishedUser"`
	DailyCollectiveLimit         int     `json:"dailyCollectiveLimit"`
	WeeklyCollectiveLimit        int     `json:"weeklyCollectiveLimit"`
	MonthlyCollectiveLimit       int     `json:"monthlyCollectiveLimit"`
	FairSharePercentage          float64 `json:"fairSharePercentage"`
	EmergencyReservePercentage   float64 `json:"emergencyReservePercentage"`
	CooldownSeconds              int     `json:"cooldownSeconds"`
	HourlyVelocityLimit          int     `json:"hourlyVelocityLimit"`
	IPDailyLimit                 int     `json:"ipDailyLimit"`
}

// LimitsUpdate is a partial limits document; nil fields are left unchanged.
type LimitsUpdate struct {
	DailyLimitPerSuspiciousUser  *int     `json:"dailyLimitPerSuspiciousUser,omitempty"`
	DailyLimitPerNewUser         *int     `json:"dailyLimitPerNewUser,omitempty"`
	DailyLimitPerEstablishedUser *int     `json:"dailyLimitPerEstablishedUser,omitempty"`
	DailyCollectiveLimit         *int     `json:"dailyCollectiveLimit,omitempty"`
	WeeklyCollectiveLimit        *int     `json:"weeklyCollectiveLimit,omitempty"`
	MonthlyCollectiveLimit       *int     `json:"monthlyCollectiveLimit,omitempty"`
	FairSharePercentage          *float64 `json:"fairSharePercentage,omitempty"`
	EmergencyReservePercentage   *float64 `json:"emergencyReservePercentage,omitempty"`
	CooldownSeconds              *int     `json:"cooldownSeconds,omitempty"`
	HourlyVelocityLimit          *int     `json:"hourlyVelocityLimit,omitempty"`
	IPDailyLimit                 *int     `json:"ipDailyLimit,omitempty"`
}

// DefaultLimits returns the built-in limits configuration.
func DefaultLimits() Limits {
	return Limits{
		DailyLimitPerSuspiciousUser:  config.DefaultDailySuspicious,
		DailyLimitPerNewUser:         config.DefaultDailyNew,
		DailyLimitPerEstablishedUser: config.DefaultDailyEstablished,
		DailyCollectiveLimit:         config.DefaultDailyCollective,
		WeeklyCollectiveLimit:        config.DefaultWeeklyCollective,
		MonthlyCollectiveLimit:       config.DefaultMonthCollective,
		FairSharePercentage:          config.DefaultFairShare,
		EmergencyReservePercentage:   config.DefaultReserve,
		CooldownSeconds:              config.DefaultCooldownSeconds,
		HourlyVelocityLimit:          config.DefaultHourlyVelocity,
		IPDailyLimit:                 config.DefaultIPDaily,
	}
}

// LimitsFromConfig builds the initial limits from application configuration.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		DailyLimitPerSuspiciousUser:  cfg.DailyLimitPerSuspiciousUser,
		DailyLimitPerNewUser:         cfg.DailyLimitPerNewUser,
		DailyLimitPerEstablishedUser: cfg.DailyLimitPerEstablishedUser,
		DailyCollectiveLimit:         cfg.DailyCollectiveLimit,
		WeeklyCollectiveLimit:        cfg.WeeklyCollectiveLimit,
		MonthlyCollectiveLimit:       cfg.MonthlyCollectiveLimit,
		FairSharePercentage:          cfg.FairSharePercentage,
		EmergencyReservePercentage:   cfg.EmergencyReservePercentage,
		CooldownSeconds:              cfg.CooldownSeconds,
		HourlyVelocityLimit:          cfg.HourlyVelocityLimit,
		IPDailyLimit:                 cfg.IPDailyLimit,
	}
}

// Apply returns a copy with the update's non-nil fields applied.
func (l Limits) Apply(u LimitsUpdate) Limits {
	if u.DailyLimitPerSuspiciousUser != nil {
		l.DailyLimitPerSuspiciousUser = *u.DailyLimitPerSuspiciousUser
	}
	if u.DailyLimitPerNewUser != nil {
		l.DailyLimitPerNewUser = *u.DailyLimitPerNewUser
	}
	if u.DailyLimitPerEstablishedUser != nil {
		l.DailyLimitPerEstablishedUser = *u.DailyLimitPerEstablishedUser
	}
	if u.DailyCollectiveLimit != nil {
		l.DailyCollectiveLimit = *u.DailyCollectiveLimit
	}
	if u.WeeklyCollectiveLimit != nil {
		l.WeeklyCollectiveLimit = *u.WeeklyCollectiveLimit
	}
	if u.MonthlyCollectiveLimit != nil {
		l.MonthlyCollectiveLimit = *u.MonthlyCollectiveLimit
	}
	if u.FairSharePercentage != nil {
		l.FairSharePercentage = *u.FairSharePercentage
	}
	if u.EmergencyReservePercentage != nil {
		l.EmergencyReservePercentage = *u.EmergencyReservePercentage
	}
	if u.CooldownSeconds != nil {
		l.CooldownSeconds = *u.CooldownSeconds
	}
	if u.HourlyVelocityLimit != nil {
		l.HourlyVelocityLimit = *u.HourlyVelocityLimit
	}
	if u.IPDailyLimit != nil {
		l.IPDailyLimit = *u.IPDailyLimit
	}
	return l
}

// Validate checks the limits invariants.
func (l Limits) Validate() error {
	if l.FairSharePercentage <= 0 || l.FairSharePercentage > 1 {
		return fmt.Errorf("fairSharePercentage must be in (0, 1], got %v", l.FairSharePercentage)
	}
	if l.EmergencyReservePercentage < 0 || l.EmergencyReservePercentage >= 1 {
		return fmt.Errorf("emergencyReservePercentage must be in [0, 1), got %v", l.EmergencyReservePercentage)
	}
	if l.DailyCollectiveLimit <= 0 || l.WeeklyCollectiveLimit <= 0 || l.MonthlyCollectiveLimit <= 0 {
		return fmt.Errorf("collective limits must be strictly positive")
	}
	if l.DailyLimitPerSuspiciousUser > l.DailyLimitPerNewUser ||
		l.DailyLimitPerNewUser > l.DailyLimitPerEstablishedUser {
		return fmt.Errorf("per-tier daily limits must be ordered suspicious <= new <= established")
	}
	if l.CooldownSeconds < 0 {
		return fmt.Errorf("cooldownSeconds must not be negative")
	}
	if l.HourlyVelocityLimit <= 0 || l.IPDailyLimit <= 0 {
		return fmt.Errorf("hourlyVelocityLimit and ipDailyLimit must be strictly positive")
	}
	return nil
}

// TierCap returns the daily cap for a trust tier.
func (l Limits) TierCap(tier Tier) int {
	switch tier {
	case TierSuspicious:
		return l.DailyLimitPerSuspiciousUser
	case TierEstablished:
		return l.DailyLimitPerEstablishedUser
	default:
		return l.DailyLimitPerNewUser
	}
}

// FairShareCap returns the per-identity ceiling derived from the collective
// pool: the pool minus the emergency reserve, times the fair-share fraction.
func (l Limits) FairShareCap() int {
	available := float64(l.DailyCollectiveLimit) * (1 - l.EmergencyReservePercentage)
	// Round rather than truncate: 100 * 0.29 is 28.999... in binary floats.
	return int(math.Round(available * l.FairSharePercentage))
}
