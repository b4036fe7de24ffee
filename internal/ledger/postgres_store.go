package ledger

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the monthly usage table. The migrations directory carries
// the same DDL for goose; this path covers ad-hoc and test databases.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS monthly_usage (
			account     VARCHAR(64) NOT NULL,
			month       CHAR(7)     NOT NULL,
			documents   BIGINT      NOT NULL DEFAULT 0,
			tokens      BIGINT      NOT NULL DEFAULT 0,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (account, month),
			CONSTRAINT chk_documents_nonneg CHECK (documents >= 0),
			CONSTRAINT chk_tokens_nonneg    CHECK (tokens >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_monthly_usage_month ON monthly_usage(month DESC);
	`)
	return err
}

// Add upserts the accumulator row for the month containing at. The upsert is
// a single statement, so concurrent writers never lose increments.
func (p *PostgresStore) Add(ctx context.Context, account string, documents int, tokens int64, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO monthly_usage (account, month, documents, tokens, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account, month) DO UPDATE SET
			documents  = monthly_usage.documents + EXCLUDED.documents,
			tokens     = monthly_usage.tokens + EXCLUDED.tokens,
			updated_at = EXCLUDED.updated_at
	`, account, MonthOf(at), documents, tokens, at)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, account, month string) (*MonthlyUsage, error) {
	b := &MonthlyUsage{Account: account, Month: month}

	err := p.db.QueryRowContext(ctx, `
		SELECT documents, tokens, updated_at
		FROM monthly_usage WHERE account = $1 AND month = $2
	`, account, month).Scan(&b.Documents, &b.Tokens, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		return &MonthlyUsage{Account: account, Month: month}, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (p *PostgresStore) History(ctx context.Context, account string, limit int) ([]*MonthlyUsage, error) {
	if limit <= 0 {
		limit = 12
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT account, month, documents, tokens, updated_at
		FROM monthly_usage
		WHERE account = $1
		ORDER BY month DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MonthlyUsage
	for rows.Next() {
		b := &MonthlyUsage{}
		if err := rows.Scan(&b.Account, &b.Month, &b.Documents, &b.Tokens, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
