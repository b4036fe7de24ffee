package governance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/clauselens/governor/internal/logging"
	"github.com/clauselens/governor/internal/metrics"
	"github.com/clauselens/governor/internal/syncutil"
	"github.com/clauselens/governor/internal/traces"
)

// How long an identity may stay idle before the sweeper evicts it.
const identityRetention = 30 * 24 * time.Hour

// UsageSink receives confirmed usage for durable recording. Implementations
// must not block the caller; failures are theirs to log and swallow.
type UsageSink interface {
	Record(ctx context.Context, documents int, tokens int64, at time.Time)
}

// EventSink receives governance audit events.
type EventSink interface {
	PublishAudit(evt AuditEvent)
}

// Service is the collective usage governance engine: the single decision
// authority for free-tier admission in this deployment.
type Service struct {
	tracker *Tracker
	windows *Windows
	scorer  Scorer

	limitsMu sync.RWMutex
	limits   Limits

	// locks serializes admission sequences per tracking key so two
	// concurrent checks for one identity cannot both be admitted at the cap.
	locks syncutil.ShardedMutex

	clock  quartz.Clock
	logger *slog.Logger
	ledger UsageSink
	events EventSink
}

// Option configures the service.
type Option func(*Service)

// WithClock injects a clock; tests use a quartz mock.
func WithClock(clock quartz.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithLedger sets the durable usage sink.
func WithLedger(sink UsageSink) Option {
	return func(s *Service) { s.ledger = sink }
}

// WithEvents sets the audit event sink.
func WithEvents(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// NewService creates a governance service with the given initial limits.
func NewService(limits Limits, opts ...Option) *Service {
	s := &Service{
		tracker: NewTracker(),
		windows: NewWindows(),
		limits:  limits,
		clock:   quartz.NewReal(),
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the current limits configuration.
func (s *Service) Limits() Limits {
	s.limitsMu.RLock()
	defer s.limitsMu.RUnlock()
	return s.limits
}

// UpdateLimits applies a partial update to the limits configuration. The
// replacement is validated before it is swapped in; on error nothing changes.
func (s *Service) UpdateLimits(u LimitsUpdate) (Limits, error) {
	s.limitsMu.Lock()
	defer s.limitsMu.Unlock()

	next := s.limits.Apply(u)
	if err := next.Validate(); err != nil {
		return s.limits, err
	}
	s.limits = next
	s.logger.Info("limits updated",
		"daily_collective", next.DailyCollectiveLimit,
		"daily_new", next.DailyLimitPerNewUser,
		"fair_share", next.FairSharePercentage,
	)
	return next, nil
}

// RecordUsage reports one completed analysis. Fire-and-forget: it never
// returns an error, because the analysis already succeeded and the user must
// not see a failure for bookkeeping reasons.
func (s *Service) RecordUsage(ctx context.Context, report UsageReport) {
	ctx, span := traces.StartSpan(ctx, "governance.RecordUsage", traces.Tokens(report.TokensUsed))
	defer span.End()

	now := s.clock.Now()
	key := TrackingKeyFor(report.SessionID, report.Fingerprint, report.ClientIP)

	unlock := s.locks.Lock(key)
	defer unlock()

	// A restart between check and report loses the tracker entry; recreate
	// it rather than dropping the usage (assume zero prior history).
	id, _, created := s.tracker.Resolve(report.SessionID, report.Fingerprint, report.ClientIP, now, s.scorer.InitialScore)
	if created {
		s.logger.Debug("usage reported for untracked identity", "tracking_key", shortKey(id.TrackingKey))
	}
	s.tracker.Update(key, func(id *Identity) {
		id.DocumentsAnalyzed++
		id.LastSeen = now
	})

	s.windows.RecordUsage(key, report.ClientIP, now)
	metrics.CollectiveUsageToday.Set(float64(s.windows.CollectiveToday(now)))

	if s.ledger != nil {
		s.ledger.Record(ctx, 1, report.TokensUsed, now)
	}
}

// FlagSuspicious marks every identity observed for a session as suspicious.
// Administrative operation: errors propagate to the caller.
func (s *Service) FlagSuspicious(ctx context.Context, sessionID, reason string) (int, error) {
	keys := s.tracker.KeysForSession(SessionDigest(sessionID))
	if len(keys) == 0 {
		return 0, ErrIdentityNotFound
	}

	now := s.clock.Now()
	for _, key := range keys {
		s.tracker.Update(key, func(id *Identity) {
			id.Suspicious = true
		})
		s.emit(AuditEvent{Type: EventFlagged, TrackingKey: key, Reason: reason, At: now})
	}
	logging.L(ctx).Info("identities flagged suspicious", "count", len(keys), "reason", reason)
	return len(keys), nil
}

// ClearSuspicious removes the suspicious flag from every identity observed
// for a session and resets their risk score to the base value, so the next
// check does not immediately re-tier them as suspicious.
func (s *Service) ClearSuspicious(ctx context.Context, sessionID string) (int, error) {
	keys := s.tracker.KeysForSession(SessionDigest(sessionID))
	if len(keys) == 0 {
		return 0, ErrIdentityNotFound
	}

	now := s.clock.Now()
	for _, key := range keys {
		s.tracker.Update(key, func(id *Identity) {
			id.Suspicious = false
			id.RiskScore = baseRiskScore
		})
		s.emit(AuditEvent{Type: EventCleared, TrackingKey: key, At: now})
	}
	logging.L(ctx).Info("suspicious flag cleared", "count", len(keys))
	return len(keys), nil
}

// Statistics returns the control-plane snapshot.
func (s *Service) Statistics() Statistics {
	now := s.clock.Now()
	active, suspicious, established := s.tracker.Counts(now)

	metrics.ActiveIdentities.Set(float64(active))
	metrics.SuspiciousIdentities.Set(float64(suspicious))

	return Statistics{
		ActiveIdentities: active,
		TodayUsage:       s.windows.CollectiveToday(now),
		WeekUsage:        s.windows.CollectiveThisWeek(now),
		MonthUsage:       s.windows.CollectiveThisMonth(now),
		SuspiciousCount:  suspicious,
		EstablishedCount: established,
		CurrentLimits:    s.Limits(),
	}
}

// Sweep evicts idle identities and expired usage buckets. Called by the
// maintenance sweeper; exposed so tests can trigger it deterministically.
func (s *Service) Sweep() (identities, buckets int) {
	now := s.clock.Now()

	evicted := s.tracker.Evict(now.Add(-identityRetention))
	buckets = s.windows.Sweep(now)
	identities = len(evicted)

	active, suspicious, _ := s.tracker.Counts(now)
	metrics.ActiveIdentities.Set(float64(active))
	metrics.SuspiciousIdentities.Set(float64(suspicious))
	metrics.SweepEvictionsTotal.WithLabelValues("identity").Add(float64(identities))
	metrics.SweepEvictionsTotal.WithLabelValues("bucket").Add(float64(buckets))

	return identities, buckets
}

func (s *Service) emit(evt AuditEvent) {
	if s.events != nil {
		s.events.PublishAudit(evt)
	}
}

// shortKey truncates a tracking key for log lines.
func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
