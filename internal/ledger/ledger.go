// Package ledger records confirmed free-tier usage into the monthly usage
// accounts that billing reconciliation reads. The admission path never
// queries it; in-memory windows answer all limit checks, and the ledger is
// the durable monthly record.
package ledger

import (
	"context"
	"fmt"
	"time"
)

// CollectiveAccount is the account key for the shared free-tier pool. There
// are no per-user accounts on the free tier.
const CollectiveAccount = "free-tier-collective"

// MonthlyUsage is one account's usage for one calendar month.
type MonthlyUsage struct {
	Account   string    `json:"account"`
	Month     string    `json:"month"` // "2006-01", UTC
	Documents int64     `json:"documents"`
	Tokens    int64     `json:"tokens"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists monthly usage accumulators.
type Store interface {
	// Add accumulates documents and tokens onto an account's bucket for
	// the month containing at.
	Add(ctx context.Context, account string, documents int, tokens int64, at time.Time) error

	// Get returns the bucket for an account and month key, or zero counts
	// if nothing has been recorded.
	Get(ctx context.Context, account, month string) (*MonthlyUsage, error)

	// History returns an account's buckets, most recent month first.
	History(ctx context.Context, account string, limit int) ([]*MonthlyUsage, error)
}

// MonthOf returns the ledger month key for a timestamp.
func MonthOf(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("%04d-%02d", u.Year(), int(u.Month()))
}
