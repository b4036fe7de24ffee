package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Used in tests and in deployments
// without a database, where the monthly record is best-effort.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]*MonthlyUsage // account + "|" + month
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*MonthlyUsage)}
}

func (m *MemoryStore) Add(_ context.Context, account string, documents int, tokens int64, at time.Time) error {
	month := MonthOf(at)
	key := account + "|" + month

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok {
		b = &MonthlyUsage{Account: account, Month: month}
		m.buckets[key] = b
	}
	b.Documents += int64(documents)
	b.Tokens += tokens
	b.UpdatedAt = at
	return nil
}

func (m *MemoryStore) Get(_ context.Context, account, month string) (*MonthlyUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if b, ok := m.buckets[account+"|"+month]; ok {
		cp := *b
		return &cp, nil
	}
	return &MonthlyUsage{Account: account, Month: month}, nil
}

func (m *MemoryStore) History(_ context.Context, account string, limit int) ([]*MonthlyUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MonthlyUsage
	for _, b := range m.buckets {
		if b.Account == account {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month > out[j].Month })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
