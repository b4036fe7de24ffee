package ledger

import (
	"context"
	"testing"
	"time"
)

func TestMonthOf(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), "2026-03"},
		{time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), "2026-12"},
		// 23:30 in UTC-2 is already the next day, and here the next month, in UTC.
		{time.Date(2026, 2, 28, 23, 30, 0, 0, time.FixedZone("m2", -2*3600)), "2026-03"},
	}
	for _, tt := range tests {
		if got := MonthOf(tt.in); got != tt.want {
			t.Errorf("MonthOf(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMemoryStoreAdd(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	if err := s.Add(ctx, CollectiveAccount, 1, 1200, at); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(ctx, CollectiveAccount, 1, 800, at.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	b, err := s.Get(ctx, CollectiveAccount, "2026-03")
	if err != nil {
		t.Fatal(err)
	}
	if b.Documents != 2 {
		t.Errorf("Documents = %d, want 2", b.Documents)
	}
	if b.Tokens != 2000 {
		t.Errorf("Tokens = %d, want 2000", b.Tokens)
	}
}

func TestMemoryStoreGetEmpty(t *testing.T) {
	s := NewMemoryStore()

	b, err := s.Get(context.Background(), CollectiveAccount, "2026-01")
	if err != nil {
		t.Fatal(err)
	}
	if b.Documents != 0 || b.Tokens != 0 {
		t.Errorf("expected zero bucket, got %+v", b)
	}
}

func TestMemoryStoreHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for m := 1; m <= 4; m++ {
		at := time.Date(2026, time.Month(m), 10, 0, 0, 0, 0, time.UTC)
		if err := s.Add(ctx, CollectiveAccount, m, int64(m)*100, at); err != nil {
			t.Fatal(err)
		}
	}
	s.Add(ctx, "other-account", 1, 1, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	hist, err := s.History(ctx, CollectiveAccount, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(hist))
	}
	if hist[0].Month != "2026-04" || hist[2].Month != "2026-02" {
		t.Errorf("expected newest-first ordering, got %q .. %q", hist[0].Month, hist[2].Month)
	}
}
