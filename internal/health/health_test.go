package health

import (
	"context"
	"testing"
	"time"
)

func TestCheckAllAggregates(t *testing.T) {
	r := NewRegistry()
	r.Register("a", func(ctx context.Context) Status {
		return Status{Name: "a", Healthy: true}
	})
	r.Register("b", func(ctx context.Context) Status {
		return Status{Name: "b", Healthy: false, Detail: "boom"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("expected aggregate unhealthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[1].Detail != "boom" {
		t.Errorf("expected detail preserved, got %q", statuses[1].Detail)
	}
}

func TestCheckAllEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("expected no statuses, got %d", len(statuses))
	}
}

func TestStalenessChecker(t *testing.T) {
	last := time.Time{}
	check := StalenessChecker("sweeper", time.Hour, func() time.Time { return last })

	st := check(context.Background())
	if !st.Healthy {
		t.Error("zero timestamp should be healthy (not yet run)")
	}

	last = time.Now().Add(-2 * time.Hour)
	st = check(context.Background())
	if st.Healthy {
		t.Error("stale timestamp should be unhealthy")
	}

	last = time.Now()
	st = check(context.Background())
	if !st.Healthy {
		t.Error("fresh timestamp should be healthy")
	}
}
