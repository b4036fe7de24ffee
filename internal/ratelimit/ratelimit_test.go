package ratelimit

import (
	"testing"
	"time"

	"github.com/coder/quartz"
)

func TestLimiterAllow(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	}
	clock := quartz.NewMock(t)
	limiter := NewWithClock(cfg, clock)

	key := "203.0.113.9"

	// Should allow burst size requests immediately
	for i := 0; i < 5; i++ {
		if !limiter.Allow(key) {
			t.Errorf("request %d should be allowed (within burst)", i)
		}
	}

	// Next request should be denied
	if limiter.Allow(key) {
		t.Error("request after burst should be denied")
	}

	// One second replenishes one token at 60/min
	clock.Advance(time.Second)
	if !limiter.Allow(key) {
		t.Error("request after waiting should be allowed")
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	}
	limiter := NewWithClock(cfg, quartz.NewMock(t))

	for i := 0; i < 3; i++ {
		limiter.Allow("client-a")
	}

	if limiter.Allow("client-a") {
		t.Error("client A should be rate limited")
	}

	if !limiter.Allow("client-b") {
		t.Error("client B should not be rate limited")
	}
}

func TestLimiterCleanupEvictsStale(t *testing.T) {
	cfg := DefaultConfig()
	clock := quartz.NewMock(t)
	limiter := NewWithClock(cfg, clock)

	limiter.Allow("old-client")
	clock.Advance(3 * time.Minute)
	limiter.Allow("fresh-client")

	limiter.evictStale()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.clients["old-client"]; ok {
		t.Error("stale client should be evicted")
	}
	if _, ok := limiter.clients["fresh-client"]; !ok {
		t.Error("fresh client should be kept")
	}
}
