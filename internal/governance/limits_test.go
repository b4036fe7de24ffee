package governance

import (
	"encoding/json"
	"testing"
)

func intPtr(n int) *int           { return &n }
func floatPtr(f float64) *float64 { return &f }

func TestLimitsApply(t *testing.T) {
	base := DefaultLimits()

	next := base.Apply(LimitsUpdate{
		DailyCollectiveLimit: intPtr(500),
		FairSharePercentage:  floatPtr(0.25),
	})

	if next.DailyCollectiveLimit != 500 {
		t.Errorf("DailyCollectiveLimit = %d, want 500", next.DailyCollectiveLimit)
	}
	if next.FairSharePercentage != 0.25 {
		t.Errorf("FairSharePercentage = %v, want 0.25", next.FairSharePercentage)
	}
	// Untouched fields keep their values.
	if next.DailyLimitPerNewUser != base.DailyLimitPerNewUser {
		t.Errorf("DailyLimitPerNewUser changed unexpectedly: %d", next.DailyLimitPerNewUser)
	}
	if next.CooldownSeconds != base.CooldownSeconds {
		t.Errorf("CooldownSeconds changed unexpectedly: %d", next.CooldownSeconds)
	}
}

func TestLimitsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Limits)
		wantErr bool
	}{
		{"defaults are valid", func(*Limits) {}, false},
		{"zero fair share", func(l *Limits) { l.FairSharePercentage = 0 }, true},
		{"fair share above one", func(l *Limits) { l.FairSharePercentage = 1.5 }, true},
		{"reserve of one", func(l *Limits) { l.EmergencyReservePercentage = 1 }, true},
		{"zero reserve is fine", func(l *Limits) { l.EmergencyReservePercentage = 0 }, false},
		{"zero collective", func(l *Limits) { l.DailyCollectiveLimit = 0 }, true},
		{"inverted tier caps", func(l *Limits) { l.DailyLimitPerSuspiciousUser = 5 }, true},
		{"negative cooldown", func(l *Limits) { l.CooldownSeconds = -1 }, true},
		{"zero velocity limit", func(l *Limits) { l.HourlyVelocityLimit = 0 }, true},
		{"zero ip limit", func(l *Limits) { l.IPDailyLimit = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := DefaultLimits()
			tt.mutate(&l)
			err := l.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTierCap(t *testing.T) {
	l := DefaultLimits()
	if got := l.TierCap(TierSuspicious); got != 1 {
		t.Errorf("suspicious cap = %d, want 1", got)
	}
	if got := l.TierCap(TierNew); got != 3 {
		t.Errorf("new cap = %d, want 3", got)
	}
	if got := l.TierCap(TierEstablished); got != 10 {
		t.Errorf("established cap = %d, want 10", got)
	}
}

func TestFairShareCap(t *testing.T) {
	l := DefaultLimits()
	// 200 * (1 - 0.20) * 0.10 = 16
	if got := l.FairShareCap(); got != 16 {
		t.Errorf("FairShareCap = %d, want 16", got)
	}

	l.EmergencyReservePercentage = 0
	l.FairSharePercentage = 0.5
	if got := l.FairShareCap(); got != 100 {
		t.Errorf("FairShareCap = %d, want 100", got)
	}

	// 100 * 0.29 lands just below 29 in binary floats; the cap must not
	// truncate away the configured percentage.
	l.DailyCollectiveLimit = 100
	l.FairSharePercentage = 0.29
	if got := l.FairShareCap(); got != 29 {
		t.Errorf("FairShareCap = %d, want 29", got)
	}
}

func TestLimitsUpdateJSONOmitsUnset(t *testing.T) {
	var u LimitsUpdate
	if err := json.Unmarshal([]byte(`{"dailyCollectiveLimit": 750}`), &u); err != nil {
		t.Fatal(err)
	}
	if u.DailyCollectiveLimit == nil || *u.DailyCollectiveLimit != 750 {
		t.Error("dailyCollectiveLimit not decoded")
	}
	if u.FairSharePercentage != nil {
		t.Error("absent field decoded as set")
	}
}
