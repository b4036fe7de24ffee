package governance

import (
	"context"
	"math"

	"github.com/clauselens/governor/internal/metrics"
	"github.com/clauselens/governor/internal/traces"
)

// waitSeconds returned with velocity and IP denials.
const (
	velocityWaitSeconds = 3600
	ipLimitWaitSeconds  = 86400
)

// CanAnalyze decides whether a free-tier analysis request may proceed. The
// checks run in strict order and the first failure wins. All checks are
// read-only against usage state; the caller reports usage separately after
// the analysis actually succeeds, so a denied-then-retried request never
// double-counts.
//
// Fail-open: a panic anywhere below produces an allow at the suspicious-tier
// cap. A false allow costs at most one extra free document; a false deny
// harms a legitimate user.
func (s *Service) CanAnalyze(ctx context.Context, req CheckRequest) (verdict *Verdict) {
	ctx, span := traces.StartSpan(ctx, "governance.CanAnalyze")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			verdict = s.failOpen(r)
		}
		span.SetAttributes(traces.Outcome(verdict.Allowed), traces.Reason(verdict.Reason), traces.Tier(string(verdict.Tier)))
		outcome := "allowed"
		if !verdict.Allowed {
			outcome = "denied"
		}
		metrics.AdmissionDecisionsTotal.WithLabelValues(outcome, verdict.Reason).Inc()
	}()

	now := s.clock.Now()
	limits := s.Limits()
	key := TrackingKeyFor(req.SessionID, req.Fingerprint, req.ClientIP)

	unlock := s.locks.Lock(key)
	defer unlock()

	id, prevSeen, created := s.tracker.Resolve(req.SessionID, req.Fingerprint, req.ClientIP, now, s.scorer.InitialScore)
	span.SetAttributes(traces.TrackingKey(shortKey(key)))

	// Every admission attempt counts toward the trailing-hour velocity
	// window, whatever the verdict.
	hourly := s.windows.Touch(key, now)

	if created {
		s.logger.Info("new identity observed",
			"tracking_key", shortKey(key),
			"risk_score", id.RiskScore,
		)
		s.emit(AuditEvent{Type: EventIdentityObserved, TrackingKey: key, RiskScore: id.RiskScore, At: now})
	} else {
		id = s.reassess(id, hourly)
	}

	// 1. Collective ceiling: the shared pool is exhausted for everyone.
	collective := s.windows.CollectiveToday(now)
	if collective >= limits.DailyCollectiveLimit {
		reset := nextMidnightUTC(now)
		return s.deny(key, &Verdict{
			Reason:    ReasonCollectiveLimit,
			Limit:     limits.DailyCollectiveLimit,
			Used:      collective,
			ResetTime: &reset,
		})
	}

	// 2. Trust tier and its daily cap.
	tier := TierFor(id, now)
	tierCap := limits.TierCap(tier)

	// 3. Per-identity daily cap.
	usedToday := s.windows.IdentityUsageToday(key, now)
	if usedToday >= tierCap {
		reset := nextMidnightUTC(now)
		return s.deny(key, &Verdict{
			Reason:    ReasonDailyLimit,
			Tier:      tier,
			Limit:     tierCap,
			Used:      usedToday,
			ResetTime: &reset,
		})
	}

	// 4. Fair share: binding only when the tier cap is higher than the
	// fair-share cap, i.e. fair share is the tighter constraint.
	fairShare := limits.FairShareCap()
	if usedToday >= fairShare && tierCap > fairShare {
		reset := nextMidnightUTC(now)
		return s.deny(key, &Verdict{
			Reason:    ReasonFairUsage,
			Tier:      tier,
			Limit:     fairShare,
			Used:      usedToday,
			ResetTime: &reset,
		})
	}

	// 5. Cooldown between consecutive requests.
	cooldown := float64(limits.CooldownSeconds)
	if !prevSeen.IsZero() {
		elapsed := now.Sub(prevSeen).Seconds()
		if elapsed < cooldown {
			return s.deny(key, &Verdict{
				Reason:      ReasonRateLimited,
				Tier:        tier,
				WaitSeconds: int(math.Ceil(cooldown - elapsed)),
			})
		}
	}

	// 6. Hourly velocity: sustained hammering flips the sticky flag.
	if hourly > limits.HourlyVelocityLimit {
		s.tracker.Update(key, func(id *Identity) {
			id.Suspicious = true
		})
		s.logger.Warn("identity flagged for hourly velocity",
			"tracking_key", shortKey(key),
			"hourly_requests", hourly,
		)
		s.emit(AuditEvent{Type: EventFlagged, TrackingKey: key, Reason: ReasonSuspicious, At: now})
		return s.deny(key, &Verdict{
			Reason:      ReasonSuspicious,
			Tier:        TierSuspicious,
			WaitSeconds: velocityWaitSeconds,
		})
	}

	// 7. IP aggregate: total confirmed usage across identities on this IP.
	if ipUsed := s.windows.IPUsageToday(req.ClientIP, now); ipUsed >= limits.IPDailyLimit {
		return s.deny(key, &Verdict{
			Reason:      ReasonIPLimit,
			Tier:        tier,
			Limit:       limits.IPDailyLimit,
			Used:        ipUsed,
			WaitSeconds: ipLimitWaitSeconds,
		})
	}

	// 8. Admitted.
	return &Verdict{
		Allowed: true,
		Tier:    tier,
		Limit:   tierCap,
		Used:    usedToday,
	}
}

// reassess applies the incremental risk update for a returning identity and
// returns the refreshed snapshot.
func (s *Service) reassess(id Identity, hourly int) Identity {
	now := s.clock.Now()
	score, suspicious := s.scorer.Reassess(id, hourly, now)
	if score == id.RiskScore && suspicious == id.Suspicious {
		return id
	}

	newlyFlagged := suspicious && !id.Suspicious
	s.tracker.Update(id.TrackingKey, func(cur *Identity) {
		cur.RiskScore = score
		cur.Suspicious = suspicious
	})
	id.RiskScore = score
	id.Suspicious = suspicious

	if newlyFlagged {
		s.logger.Warn("identity flagged by risk score",
			"tracking_key", shortKey(id.TrackingKey),
			"risk_score", score,
		)
		s.emit(AuditEvent{Type: EventFlagged, TrackingKey: id.TrackingKey, Reason: "risk threshold crossed", RiskScore: score, At: now})
	}
	return id
}

func (s *Service) deny(key string, v *Verdict) *Verdict {
	v.Allowed = false
	s.emit(AuditEvent{Type: EventDenied, TrackingKey: key, Reason: v.Reason, At: s.clock.Now()})
	return v
}

// failOpen: an internal fault yields an allow capped at the lowest tier
// limit rather than an outage.
func (s *Service) failOpen(cause any) *Verdict {
	limits := s.Limits()
	s.logger.Warn("admission check failed internally, failing open", "cause", cause)
	metrics.AdmissionFailOpenTotal.Inc()

	return &Verdict{
		Allowed: true,
		Tier:    TierSuspicious,
		Limit:   limits.DailyLimitPerSuspiciousUser,
	}
}
