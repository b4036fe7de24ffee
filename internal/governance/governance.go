// Package governance implements admission control for the anonymous free tier.
//
// Every unauthenticated analysis request resolves to an ephemeral identity
// (a digest of session ID, device fingerprint, and client IP), gets a risk
// score, and is checked against the shared collective quota pool plus
// per-identity caps before the document pipeline runs. The posture is
// fail-open: an internal fault produces an allow at the lowest tier cap,
// never an outage for legitimate users.
package governance

import (
	"errors"
	"time"
)

// Tier is an identity's trust tier, which determines its daily cap.
type Tier string

const (
	TierSuspicious  Tier = "suspicious"
	TierNew         Tier = "new"
	TierEstablished Tier = "established"
)

// Denial reasons returned to the caller for client display.
const (
	ReasonCollectiveLimit = "collective limit reached"
	ReasonDailyLimit      = "daily limit reached"
	ReasonFairUsage       = "fair usage limit"
	ReasonRateLimited     = "rate limited"
	ReasonSuspicious      = "suspicious activity"
	ReasonIPLimit         = "IP limit exceeded"
)

var (
	// ErrIdentityNotFound is returned by admin operations targeting a
	// session with no tracked identities.
	ErrIdentityNotFound = errors.New("no tracked identity for session")
)

// CheckRequest identifies the requester on the admission path.
type CheckRequest struct {
	SessionID   string `json:"sessionId"`
	Fingerprint string `json:"deviceFingerprint"`
	ClientIP    string `json:"clientIp"`
}

// UsageReport is submitted by the analysis pipeline after a successful run.
type UsageReport struct {
	SessionID   string `json:"sessionId"`
	Fingerprint string `json:"deviceFingerprint"`
	ClientIP    string `json:"clientIp"`
	TokensUsed  int64  `json:"tokensUsed"`
}

// Verdict is the admission decision returned synchronously for each request.
type Verdict struct {
	Allowed     bool       `json:"allowed"`
	Reason      string     `json:"reason,omitempty"`
	Tier        Tier       `json:"tier,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Used        int        `json:"used,omitempty"`
	ResetTime   *time.Time `json:"resetTime,omitempty"`
	WaitSeconds int        `json:"waitSeconds,omitempty"`
}

// Statistics is the control-plane snapshot of governance state.
type Statistics struct {
	ActiveIdentities int    `json:"activeIdentities"`
	TodayUsage       int    `json:"todayUsage"`
	WeekUsage        int    `json:"weekUsage"`
	MonthUsage       int    `json:"monthUsage"`
	SuspiciousCount  int    `json:"suspiciousCount"`
	EstablishedCount int    `json:"establishedCount"`
	CurrentLimits    Limits `json:"currentLimits"`
}

// AuditEventType classifies governance audit events.
type AuditEventType string

const (
	EventIdentityObserved AuditEventType = "identity_observed"
	EventDenied           AuditEventType = "denied"
	EventFlagged          AuditEventType = "flagged"
	EventCleared          AuditEventType = "cleared"
)

// AuditEvent is emitted on notable governance transitions. Tracking keys are
// digests, so events carry no raw identifiers.
type AuditEvent struct {
	Type        AuditEventType `json:"type"`
	TrackingKey string         `json:"trackingKey"`
	Reason      string         `json:"reason,omitempty"`
	RiskScore   int            `json:"riskScore,omitempty"`
	At          time.Time      `json:"at"`
}

// nextMidnightUTC returns the start of the next UTC calendar day, which is
// when daily windows reset.
func nextMidnightUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
