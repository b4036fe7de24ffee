package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/clauselens/governor/internal/metrics"
)

const (
	bridgeQueueSize    = 256
	bridgeWriteTimeout = 5 * time.Second
)

type usageWrite struct {
	documents int
	tokens    int64
	at        time.Time
}

// Bridge feeds confirmed usage into a Store without ever blocking or failing
// the caller. Writes queue onto a bounded channel and a single worker drains
// them; when the queue is full the write is dropped and counted. The monthly
// ledger is a reporting artifact, not an enforcement input, so losing a write
// under pressure is acceptable and an error never propagates.
type Bridge struct {
	store  Store
	logger *slog.Logger
	queue  chan usageWrite
	done   chan struct{}
}

// NewBridge creates a bridge over the store and starts its worker.
func NewBridge(store Store, logger *slog.Logger) *Bridge {
	b := &Bridge{
		store:  store,
		logger: logger,
		queue:  make(chan usageWrite, bridgeQueueSize),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Record queues one usage write. Never blocks.
func (b *Bridge) Record(_ context.Context, documents int, tokens int64, at time.Time) {
	select {
	case b.queue <- usageWrite{documents: documents, tokens: tokens, at: at}:
	default:
		metrics.LedgerWritesTotal.WithLabelValues("dropped").Inc()
		b.logger.Warn("ledger queue full, usage write dropped",
			"documents", documents,
			"tokens", tokens,
		)
	}
}

// Close stops the worker after draining queued writes.
func (b *Bridge) Close() {
	close(b.queue)
	<-b.done
}

func (b *Bridge) run() {
	defer close(b.done)
	for w := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), bridgeWriteTimeout)
		err := b.store.Add(ctx, CollectiveAccount, w.documents, w.tokens, w.at)
		cancel()

		if err != nil {
			metrics.LedgerWritesTotal.WithLabelValues("error").Inc()
			b.logger.Error("ledger write failed", "error", err, "month", MonthOf(w.at))
			continue
		}
		metrics.LedgerWritesTotal.WithLabelValues("ok").Inc()
	}
}
