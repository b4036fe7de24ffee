package governance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/clauselens/governor/internal/metrics"
)

// Sweeper periodically evicts idle identities and expired usage buckets.
// The ticker callback runs sweeps serially, so a slow sweep can never
// overlap the next one, and cancelling the context stops the loop at the
// top of the next iteration.
type Sweeper struct {
	service  *Service
	interval time.Duration
	clock    quartz.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	lastSweep time.Time
	waiter    quartz.Waiter
}

// NewSweeper creates a maintenance sweeper for the service.
func NewSweeper(service *Service, interval time.Duration, clock quartz.Clock, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Start begins the sweep loop. It returns immediately; the loop stops when
// ctx is cancelled.
func (sw *Sweeper) Start(ctx context.Context) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.waiter = sw.clock.TickerFunc(ctx, sw.interval, func() error {
		sw.RunOnce()
		return nil
	}, "maintenance-sweeper")
}

// Wait blocks until the sweep loop has exited. Call after cancelling the
// context passed to Start.
func (sw *Sweeper) Wait() {
	sw.mu.Lock()
	waiter := sw.waiter
	sw.mu.Unlock()
	if waiter != nil {
		_ = waiter.Wait()
	}
}

// RunOnce performs a single sweep. Exposed so tests and the admin surface
// can trigger maintenance without waiting on wall-clock time.
func (sw *Sweeper) RunOnce() (identities, buckets int) {
	start := sw.clock.Now()
	identities, buckets = sw.service.Sweep()
	elapsed := sw.clock.Since(start)

	sw.mu.Lock()
	sw.lastSweep = start
	sw.mu.Unlock()

	metrics.SweepRunsTotal.Inc()
	metrics.SweepDuration.Observe(elapsed.Seconds())

	sw.logger.Info("maintenance sweep completed",
		"identities_evicted", identities,
		"buckets_evicted", buckets,
		"duration", elapsed,
	)
	return identities, buckets
}

// LastSweep returns when the most recent sweep started, or the zero time if
// none has run. Used by the health checker.
func (sw *Sweeper) LastSweep() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.lastSweep
}
