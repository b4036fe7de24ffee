package governance

import (
	"fmt"
	"sync"
	"time"
)

// WindowKind selects one of the three collective counters.
type WindowKind string

const (
	WindowDaily   WindowKind = "daily"
	WindowWeekly  WindowKind = "weekly"
	WindowMonthly WindowKind = "monthly"
)

// Retention horizons for usage buckets.
const (
	dailyBucketRetention  = 90 * 24 * time.Hour
	coarseBucketRetention = 365 * 24 * time.Hour
	touchRetention        = time.Hour
)

// Windows rolls per-request events into calendar-bucketed counters: collective
// daily/weekly/monthly totals, per-identity daily usage, per-IP daily usage,
// and a trailing-hour touch log per identity. Collective and per-identity
// counters are deliberately distinct maps; they have different retention and
// different admission roles.
type Windows struct {
	mu sync.Mutex

	collective map[WindowKind]map[string]int

	identityDaily map[string]int // trackingKey + "|" + dayKey
	ipDaily       map[string]int // ip + "|" + dayKey

	touches map[string][]time.Time // trackingKey -> admission timestamps
}

// NewWindows creates an empty usage window aggregator.
func NewWindows() *Windows {
	return &Windows{
		collective: map[WindowKind]map[string]int{
			WindowDaily:   {},
			WindowWeekly:  {},
			WindowMonthly: {},
		},
		identityDaily: make(map[string]int),
		ipDaily:       make(map[string]int),
		touches:       make(map[string][]time.Time),
	}
}

// Bucket keys are derived from the UTC calendar.

// DayKey returns the daily bucket key for a timestamp.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekKey returns the ISO-week bucket key for a timestamp.
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MonthKey returns the monthly bucket key for a timestamp.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// RecordUsage rolls one confirmed analysis into every counter containing ts.
func (w *Windows) RecordUsage(trackingKey, clientIP string, ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.collective[WindowDaily][DayKey(ts)]++
	w.collective[WindowWeekly][WeekKey(ts)]++
	w.collective[WindowMonthly][MonthKey(ts)]++
	w.identityDaily[trackingKey+"|"+DayKey(ts)]++
	w.ipDaily[clientIP+"|"+DayKey(ts)]++
}

// QueryCollective returns the collective total for an explicit bucket key.
func (w *Windows) QueryCollective(kind WindowKind, bucketKey string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.collective[kind][bucketKey]
}

// CollectiveToday returns today's collective total.
func (w *Windows) CollectiveToday(now time.Time) int {
	return w.QueryCollective(WindowDaily, DayKey(now))
}

// CollectiveThisWeek returns this ISO week's collective total.
func (w *Windows) CollectiveThisWeek(now time.Time) int {
	return w.QueryCollective(WindowWeekly, WeekKey(now))
}

// CollectiveThisMonth returns this month's collective total.
func (w *Windows) CollectiveThisMonth(now time.Time) int {
	return w.QueryCollective(WindowMonthly, MonthKey(now))
}

// IdentityUsageToday returns today's confirmed usage for one identity.
func (w *Windows) IdentityUsageToday(trackingKey string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.identityDaily[trackingKey+"|"+DayKey(now)]
}

// IPUsageToday returns today's confirmed usage summed across all identities
// sharing an IP. Maintained as its own counter so the admission path never
// scans the identity map.
func (w *Windows) IPUsageToday(clientIP string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ipDaily[clientIP+"|"+DayKey(now)]
}

// Touch records an admission-path observation for an identity and returns the
// number of observations in the trailing hour, including this one.
func (w *Windows) Touch(trackingKey string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-touchRetention)
	kept := w.touches[trackingKey][:0]
	for _, ts := range w.touches[trackingKey] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	w.touches[trackingKey] = kept
	return len(kept)
}

// HourlyCount returns the trailing-hour observation count without recording.
func (w *Windows) HourlyCount(trackingKey string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-touchRetention)
	n := 0
	for _, ts := range w.touches[trackingKey] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// Sweep evicts expired buckets: daily-granularity entries past the 90-day
// horizon, weekly/monthly entries past a year, and touch logs with no entry
// in the trailing hour. Returns the number of buckets removed.
func (w *Windows) Sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	dailyCutoff := DayKey(now.Add(-dailyBucketRetention))

	for key := range w.collective[WindowDaily] {
		if key < dailyCutoff {
			delete(w.collective[WindowDaily], key)
			removed++
		}
	}
	for key := range w.identityDaily {
		if bucketSuffix(key) < dailyCutoff {
			delete(w.identityDaily, key)
			removed++
		}
	}
	for key := range w.ipDaily {
		if bucketSuffix(key) < dailyCutoff {
			delete(w.ipDaily, key)
			removed++
		}
	}

	weekCutoff := WeekKey(now.Add(-coarseBucketRetention))
	for key := range w.collective[WindowWeekly] {
		if key < weekCutoff {
			delete(w.collective[WindowWeekly], key)
			removed++
		}
	}
	monthCutoff := MonthKey(now.Add(-coarseBucketRetention))
	for key := range w.collective[WindowMonthly] {
		if key < monthCutoff {
			delete(w.collective[WindowMonthly], key)
			removed++
		}
	}

	touchCutoff := now.Add(-touchRetention)
	for key, times := range w.touches {
		kept := times[:0]
		for _, ts := range times {
			if ts.After(touchCutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(w.touches, key)
		} else {
			w.touches[key] = kept
		}
	}

	return removed
}

// bucketSuffix extracts the day key from a "prefix|dayKey" compound key.
func bucketSuffix(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[i+1:]
		}
	}
	return key
}
