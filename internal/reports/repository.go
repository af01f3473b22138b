package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository aggregates ledger totals for reporting.
type Repository interface {
	AccountBalances(ctx context.Context, companyID int64, asOf time.Time) ([]AccountBalance, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed reports repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// AccountBalances sums ledger debits and credits per account up to and
// including asOf. Accounts without activity are included with zero totals so
// the report shows the whole chart.
func (r *repository) AccountBalances(ctx context.Context, companyID int64, asOf time.Time) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.normal_side,
	COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
LEFT JOIN ledger_entries l ON l.account_id = a.id AND l.date <= $2
WHERE a.company_id = $1
GROUP BY a.id, a.code, a.name, a.type, a.normal_side
ORDER BY a.code ASC`, companyID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.NormalSide, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
