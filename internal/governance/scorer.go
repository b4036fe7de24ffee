package governance

import (
	"strings"
	"time"
)

// Scoring constants. Risk blends population-level fan-out anomalies with
// individual burst behavior; both are cheap to compute from already-tracked
// state, so no external dependency is needed.
const (
	baseRiskScore = 10

	// An IP seen with many distinct fingerprints looks like client rotation.
	ipRotationThreshold = 10
	ipRotationPenalty   = 30

	// A fingerprint seen from many IPs looks like reuse across hosts.
	fingerprintReuseThreshold = 5
	fingerprintReusePenalty   = 25

	// Structurally bogus fingerprints (too short, placeholder values).
	malformedFingerprintPenalty = 20
	minFingerprintLength        = 16

	// Scores strictly above this flip the sticky suspicious flag.
	suspicionThreshold = 70

	// Identities older than the maturity window with calm usage earn a
	// slow decay; tiers below establishedMaxRisk qualify as established.
	maturityWindow     = 7 * 24 * time.Hour
	maturityDecay      = 2
	establishedMaxRisk = 30

	// Trailing-hour request counts at or above this earn a sharp penalty.
	burstHourlyThreshold = 10
	burstPenalty         = 15

	// Hourly counts at or below this are "calm" for decay purposes.
	calmHourlyMax = 3
)

// FanOut carries the cross-identity statistics the scorer needs, computed by
// the tracker's secondary indices.
type FanOut struct {
	// FingerprintsOnIP is the number of distinct fingerprints already
	// observed from the request's IP.
	FingerprintsOnIP int
	// IPsOnFingerprint is the number of distinct IPs already observed
	// for the request's fingerprint.
	IPsOnFingerprint int
}

// Scorer computes and updates identity risk scores. Both operations are pure
// functions of the inputs; the tracker owns the state they read and write.
type Scorer struct{}

// InitialScore seeds the risk score for a newly observed identity.
func (Scorer) InitialScore(fingerprint string, fan FanOut) int {
	score := baseRiskScore

	if fan.FingerprintsOnIP > ipRotationThreshold {
		score += ipRotationPenalty
	}
	if fan.IPsOnFingerprint > fingerprintReuseThreshold {
		score += fingerprintReusePenalty
	}
	if structurallySuspicious(fingerprint) {
		score += malformedFingerprintPenalty
	}

	return clampScore(score)
}

// Reassess computes the updated score for a returning identity. Stability is
// rewarded with a slow decay; bursts are punished sharply. The returned
// suspicious flag is sticky: once true it stays true regardless of score.
func (Scorer) Reassess(id Identity, hourlyRequests int, now time.Time) (score int, suspicious bool) {
	score = id.RiskScore

	if hourlyRequests >= burstHourlyThreshold {
		score += burstPenalty
	} else if now.Sub(id.FirstSeen) >= maturityWindow && hourlyRequests <= calmHourlyMax {
		score -= maturityDecay
	}

	score = clampScore(score)
	suspicious = id.Suspicious || score > suspicionThreshold
	return score, suspicious
}

// placeholderFingerprints are values automation tooling commonly submits
// instead of a real device fingerprint.
var placeholderFingerprints = map[string]struct{}{
	"":          {},
	"null":      {},
	"undefined": {},
	"unknown":   {},
	"none":      {},
	"test":      {},
}

func structurallySuspicious(fingerprint string) bool {
	fp := strings.ToLower(strings.TrimSpace(fingerprint))
	if _, ok := placeholderFingerprints[fp]; ok {
		return true
	}
	return len(fp) < minFingerprintLength
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
