package governance

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Identity is the governance view of a requester. It is ephemeral,
// process-lifetime state; there is no durable account behind it.
type Identity struct {
	// TrackingKey is a one-way digest of (sessionId, fingerprint, clientIP).
	// The raw identifiers are never kept on the hot path.
	TrackingKey string

	// DocumentsAnalyzed counts successful analyses over this identity's lifetime.
	DocumentsAnalyzed int

	FirstSeen time.Time
	LastSeen  time.Time

	// RiskScore is in [0,100] and is mutated only by the scorer.
	RiskScore int

	// Suspicious is sticky once set. Only an administrative clear resets it.
	Suspicious bool
}

// TrackingKeyFor derives the deterministic tracking key for a requester.
func TrackingKeyFor(sessionID, fingerprint, clientIP string) string {
	return digest(sessionID + "|" + fingerprint + "|" + clientIP)
}

// SessionDigest derives the session-only digest used by the admin index, so
// control-plane flagging can find identities without storing raw session IDs.
func SessionDigest(sessionID string) string {
	return digest("session|" + sessionID)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// TierFor derives the trust tier from the identity's flag, score, and age.
func TierFor(id Identity, now time.Time) Tier {
	switch {
	case id.Suspicious || id.RiskScore > suspicionThreshold:
		return TierSuspicious
	case now.Sub(id.FirstSeen) >= maturityWindow && id.RiskScore < establishedMaxRisk:
		return TierEstablished
	default:
		return TierNew
	}
}
