package governance

import (
	"sync"
	"time"
)

// tracked is an identity plus the origin strings the secondary indices need
// for eviction. Origins never leave this package.
type tracked struct {
	id            Identity
	ip            string
	fingerprint   string
	sessionDigest string
}

// Tracker holds all per-identity state, keyed by tracking key, plus the
// secondary indices that make fan-out and session lookups O(1) instead of a
// full-map scan.
type Tracker struct {
	mu         sync.RWMutex
	identities map[string]*tracked

	fpsByIP   map[string]map[string]struct{} // ip -> distinct fingerprints
	ipsByFP   map[string]map[string]struct{} // fingerprint -> distinct ips
	bySession map[string]map[string]struct{} // session digest -> tracking keys
}

// NewTracker creates an empty identity tracker.
func NewTracker() *Tracker {
	return &Tracker{
		identities: make(map[string]*tracked),
		fpsByIP:    make(map[string]map[string]struct{}),
		ipsByFP:    make(map[string]map[string]struct{}),
		bySession:  make(map[string]map[string]struct{}),
	}
}

// Resolve finds or creates the identity for a requester. For an existing
// identity it updates lastSeen and returns the previous value, which the
// cooldown check compares against. For a new identity it computes the current
// fan-out statistics and seeds the risk score with initialScore.
func (t *Tracker) Resolve(sessionID, fingerprint, clientIP string, now time.Time, initialScore func(fingerprint string, fan FanOut) int) (id Identity, prevSeen time.Time, created bool) {
	key := TrackingKeyFor(sessionID, fingerprint, clientIP)

	t.mu.Lock()
	defer t.mu.Unlock()

	if tr, ok := t.identities[key]; ok {
		prevSeen = tr.id.LastSeen
		tr.id.LastSeen = now
		return tr.id, prevSeen, false
	}

	fan := FanOut{
		FingerprintsOnIP: len(t.fpsByIP[clientIP]),
		IPsOnFingerprint: len(t.ipsByFP[fingerprint]),
	}

	tr := &tracked{
		id: Identity{
			TrackingKey: key,
			FirstSeen:   now,
			LastSeen:    now,
			RiskScore:   initialScore(fingerprint, fan),
		},
		ip:            clientIP,
		fingerprint:   fingerprint,
		sessionDigest: SessionDigest(sessionID),
	}
	t.identities[key] = tr
	indexAdd(t.fpsByIP, clientIP, fingerprint)
	indexAdd(t.ipsByFP, fingerprint, clientIP)
	indexAdd(t.bySession, tr.sessionDigest, key)

	return tr.id, time.Time{}, true
}

// Get returns a snapshot of the identity for a tracking key.
func (t *Tracker) Get(key string) (Identity, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.identities[key]
	if !ok {
		return Identity{}, false
	}
	return tr.id, true
}

// Update mutates the identity for a tracking key under the tracker lock and
// reports whether the key was present.
func (t *Tracker) Update(key string, fn func(*Identity)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.identities[key]
	if !ok {
		return false
	}
	fn(&tr.id)
	return true
}

// KeysForSession returns the tracking keys observed for a session digest.
// Used by the admin flag/clear operations.
func (t *Tracker) KeysForSession(sessionDigest string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set := t.bySession[sessionDigest]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}

// Evict removes every identity whose lastSeen is strictly before cutoff,
// along with its index entries, and returns the evicted tracking keys.
func (t *Tracker) Evict(cutoff time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []string
	for key, tr := range t.identities {
		if !tr.id.LastSeen.Before(cutoff) {
			continue
		}
		delete(t.identities, key)
		evicted = append(evicted, key)

		// Drop the fingerprint/IP pairing only when no surviving identity
		// still carries it.
		if !t.pairStillTracked(tr.ip, tr.fingerprint) {
			indexRemove(t.fpsByIP, tr.ip, tr.fingerprint)
			indexRemove(t.ipsByFP, tr.fingerprint, tr.ip)
		}
		indexRemove(t.bySession, tr.sessionDigest, key)
	}
	return evicted
}

// pairStillTracked reports whether any remaining identity has this ip and
// fingerprint pair (caller holds the lock).
func (t *Tracker) pairStillTracked(ip, fingerprint string) bool {
	for _, tr := range t.identities {
		if tr.ip == ip && tr.fingerprint == fingerprint {
			return true
		}
	}
	return false
}

// Counts returns the population totals for the statistics endpoint.
func (t *Tracker) Counts(now time.Time) (active, suspicious, established int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	active = len(t.identities)
	for _, tr := range t.identities {
		switch TierFor(tr.id, now) {
		case TierSuspicious:
			suspicious++
		case TierEstablished:
			established++
		}
	}
	return active, suspicious, established
}

func indexAdd(idx map[string]map[string]struct{}, key, member string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[member] = struct{}{}
}

func indexRemove(idx map[string]map[string]struct{}, key, member string) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, member)
	if len(set) == 0 {
		delete(idx, key)
	}
}
