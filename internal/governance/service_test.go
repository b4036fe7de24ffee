package governance

import (
	"context"
	"errors"
	"testing"
	"time"
)

type captureLedger struct {
	documents int
	tokens    int64
	calls     int
}

func (c *captureLedger) Record(_ context.Context, documents int, tokens int64, _ time.Time) {
	c.documents += documents
	c.tokens += tokens
	c.calls++
}

func TestRecordUsage(t *testing.T) {
	ledger := &captureLedger{}
	svc, _ := newTestService(t, DefaultLimits(), WithLedger(ledger))
	report := UsageReport{SessionID: "sess-1", Fingerprint: "fp-abcdef0123456789", ClientIP: "203.0.113.5", TokensUsed: 1500}

	svc.CanAnalyze(context.Background(), CheckRequest{SessionID: report.SessionID, Fingerprint: report.Fingerprint, ClientIP: report.ClientIP})
	svc.RecordUsage(context.Background(), report)

	key := TrackingKeyFor(report.SessionID, report.Fingerprint, report.ClientIP)
	id, ok := svc.tracker.Get(key)
	if !ok {
		t.Fatal("identity missing after usage report")
	}
	if id.DocumentsAnalyzed != 1 {
		t.Errorf("DocumentsAnalyzed = %d, want 1", id.DocumentsAnalyzed)
	}
	if got := svc.windows.IdentityUsageToday(key, svc.clock.Now()); got != 1 {
		t.Errorf("identity usage = %d, want 1", got)
	}
	if ledger.calls != 1 || ledger.documents != 1 || ledger.tokens != 1500 {
		t.Errorf("ledger got %d calls, %d documents, %d tokens", ledger.calls, ledger.documents, ledger.tokens)
	}
}

func TestRecordUsage_UntrackedIdentity(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())
	report := UsageReport{SessionID: "sess-ghost", Fingerprint: "fp-abcdef0123456789", ClientIP: "203.0.113.6"}

	// No prior check, as after a process restart. The usage must still land.
	svc.RecordUsage(context.Background(), report)

	key := TrackingKeyFor(report.SessionID, report.Fingerprint, report.ClientIP)
	id, ok := svc.tracker.Get(key)
	if !ok {
		t.Fatal("expected identity to be recreated")
	}
	if id.DocumentsAnalyzed != 1 {
		t.Errorf("DocumentsAnalyzed = %d, want 1", id.DocumentsAnalyzed)
	}
	if got := svc.windows.CollectiveToday(svc.clock.Now()); got != 1 {
		t.Errorf("collective usage = %d, want 1", got)
	}
}

func TestFlagAndClearSuspicious(t *testing.T) {
	sink := &captureSink{}
	svc, clock := newTestService(t, DefaultLimits(), WithEvents(sink))

	// One session seen from two devices.
	svc.CanAnalyze(context.Background(), CheckRequest{SessionID: "sess-f", Fingerprint: "fp-abcdef0123456789", ClientIP: "203.0.113.7"})
	svc.CanAnalyze(context.Background(), CheckRequest{SessionID: "sess-f", Fingerprint: "fp-fedcba9876543210", ClientIP: "203.0.113.7"})

	count, err := svc.FlagSuspicious(context.Background(), "sess-f", "chargeback")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("flagged %d identities, want 2", count)
	}

	// Both identities now land in the suspicious tier.
	clock.Advance(time.Minute)
	v := svc.CanAnalyze(context.Background(), CheckRequest{SessionID: "sess-f", Fingerprint: "fp-abcdef0123456789", ClientIP: "203.0.113.7"})
	if v.Tier != TierSuspicious {
		t.Errorf("expected suspicious tier after flag, got %q", v.Tier)
	}

	count, err = svc.ClearSuspicious(context.Background(), "sess-f")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("cleared %d identities, want 2", count)
	}

	clock.Advance(time.Minute)
	v = svc.CanAnalyze(context.Background(), CheckRequest{SessionID: "sess-f", Fingerprint: "fp-abcdef0123456789", ClientIP: "203.0.113.7"})
	if v.Tier != TierNew {
		t.Errorf("expected new tier after clear, got %q", v.Tier)
	}

	var flagged, cleared int
	for _, evt := range sink.events {
		switch evt.Type {
		case EventFlagged:
			flagged++
		case EventCleared:
			cleared++
		}
	}
	if flagged != 2 || cleared != 2 {
		t.Errorf("expected 2 flagged and 2 cleared events, got %d and %d", flagged, cleared)
	}
}

func TestFlagSuspicious_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())

	if _, err := svc.FlagSuspicious(context.Background(), "sess-nobody", "test"); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
	if _, err := svc.ClearSuspicious(context.Background(), "sess-nobody"); !errors.Is(err, ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestUpdateLimits(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())

	next, err := svc.UpdateLimits(LimitsUpdate{DailyCollectiveLimit: intPtr(800)})
	if err != nil {
		t.Fatal(err)
	}
	if next.DailyCollectiveLimit != 800 {
		t.Errorf("DailyCollectiveLimit = %d, want 800", next.DailyCollectiveLimit)
	}
	if svc.Limits().DailyCollectiveLimit != 800 {
		t.Error("update did not take effect")
	}
}

func TestUpdateLimits_RejectsInvalid(t *testing.T) {
	svc, _ := newTestService(t, DefaultLimits())

	_, err := svc.UpdateLimits(LimitsUpdate{FairSharePercentage: floatPtr(2.0)})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if svc.Limits().FairSharePercentage != DefaultLimits().FairSharePercentage {
		t.Error("invalid update mutated the limits")
	}
}

func TestStatistics(t *testing.T) {
	svc, clock := newTestService(t, DefaultLimits())

	svc.RecordUsage(context.Background(), UsageReport{SessionID: "s1", Fingerprint: "fp-abcdef0123456789", ClientIP: "1.1.1.1"})
	clock.Advance(time.Minute)
	svc.RecordUsage(context.Background(), UsageReport{SessionID: "s2", Fingerprint: "fp-fedcba9876543210", ClientIP: "1.1.1.2"})

	stats := svc.Statistics()
	if stats.ActiveIdentities != 2 {
		t.Errorf("ActiveIdentities = %d, want 2", stats.ActiveIdentities)
	}
	if stats.TodayUsage != 2 {
		t.Errorf("TodayUsage = %d, want 2", stats.TodayUsage)
	}
	if stats.WeekUsage != 2 || stats.MonthUsage != 2 {
		t.Errorf("week/month usage = %d/%d, want 2/2", stats.WeekUsage, stats.MonthUsage)
	}
	if stats.SuspiciousCount != 0 {
		t.Errorf("SuspiciousCount = %d, want 0", stats.SuspiciousCount)
	}
	if stats.CurrentLimits != DefaultLimits() {
		t.Errorf("CurrentLimits = %+v", stats.CurrentLimits)
	}
}

func TestServiceSweep(t *testing.T) {
	svc, clock := newTestService(t, DefaultLimits())

	svc.RecordUsage(context.Background(), UsageReport{SessionID: "s-old", Fingerprint: "fp-abcdef0123456789", ClientIP: "1.1.1.1"})
	clock.Advance(31 * 24 * time.Hour)
	svc.RecordUsage(context.Background(), UsageReport{SessionID: "s-new", Fingerprint: "fp-fedcba9876543210", ClientIP: "1.1.1.2"})

	identities, _ := svc.Sweep()
	if identities != 1 {
		t.Errorf("evicted %d identities, want 1", identities)
	}

	stats := svc.Statistics()
	if stats.ActiveIdentities != 1 {
		t.Errorf("ActiveIdentities after sweep = %d, want 1", stats.ActiveIdentities)
	}
}
