package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quill/internal/platform/db"
)

// Repository exposes read queries over the ledger plus the repair entrypoint.
type Repository interface {
	EntriesByAccount(ctx context.Context, companyID, accountID int64, limit, offset int) ([]Entry, error)
	EntriesByDateRange(ctx context.Context, companyID int64, from, to time.Time) ([]Entry, error)
	EntriesByJournalEntry(ctx context.Context, companyID, journalEntryID int64) ([]Entry, error)
	GeneralLedger(ctx context.Context, companyID int64, from, to time.Time) (GeneralLedger, error)
	Repair(ctx context.Context, companyID, accountID int64) (int, error)
	AccountIDs(ctx context.Context, companyID int64) ([]int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a pgx-backed ledger repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const entryColumns = `id, company_id, account_id, je_id, je_line_id, date, debit, credit, running_balance, seq, created_at`

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.AccountID, &e.JournalEntryID, &e.JournalLineID, &e.Date, &e.Debit, &e.Credit, &e.RunningBalance, &e.Seq, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) EntriesByAccount(ctx context.Context, companyID, accountID int64, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE company_id=$1 AND account_id=$2 ORDER BY date ASC, seq ASC LIMIT $3 OFFSET $4`, companyID, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *repository) EntriesByDateRange(ctx context.Context, companyID int64, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE company_id=$1 AND date >= $2 AND date <= $3 ORDER BY date ASC, account_id ASC, seq ASC`, companyID, from, to)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

func (r *repository) EntriesByJournalEntry(ctx context.Context, companyID, journalEntryID int64) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE company_id=$1 AND je_id=$2 ORDER BY je_line_id ASC`, companyID, journalEntryID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// GeneralLedger lists every account with activity in [from, to] or a non-zero
// balance carried into it. Opening is the last running balance before from;
// Closing is the last running balance within the range, or Opening when the
// account saw no activity.
func (r *repository) GeneralLedger(ctx context.Context, companyID int64, from, to time.Time) (GeneralLedger, error) {
	gl := GeneralLedger{From: from, To: to}

	openings := map[int64]decimal.Decimal{}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT ON (account_id) account_id, running_balance
FROM ledger_entries WHERE company_id=$1 AND date < $2
ORDER BY account_id ASC, date DESC, seq DESC`, companyID, from)
	if err != nil {
		return gl, err
	}
	for rows.Next() {
		var id int64
		var bal decimal.Decimal
		if err := rows.Scan(&id, &bal); err != nil {
			rows.Close()
			return gl, err
		}
		openings[id] = bal
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return gl, err
	}

	entries, err := r.EntriesByDateRange(ctx, companyID, from, to)
	if err != nil {
		return gl, err
	}
	byAccount := map[int64][]Entry{}
	for _, e := range entries {
		byAccount[e.AccountID] = append(byAccount[e.AccountID], e)
	}

	ids := make([]int64, 0, len(openings)+len(byAccount))
	for id := range openings {
		ids = append(ids, id)
	}
	for id := range byAccount {
		if _, ok := openings[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		opening := openings[id]
		activity := byAccount[id]
		if opening.IsZero() && len(activity) == 0 {
			continue
		}
		acc := GeneralLedgerAccount{AccountID: id, Opening: opening, Entries: activity, Closing: opening}
		if len(activity) > 0 {
			acc.Closing = activity[len(activity)-1].RunningBalance
		}
		if err := r.pool.QueryRow(ctx, `SELECT code, name FROM accounts WHERE company_id=$1 AND id=$2`,
			companyID, id).Scan(&acc.Code, &acc.Name); err != nil {
			return gl, err
		}
		gl.Accounts = append(gl.Accounts, acc)
	}
	return gl, nil
}

func (r *repository) Repair(ctx context.Context, companyID, accountID int64) (int, error) {
	var corrected int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var e error
		corrected, e = RepairAccount(ctx, tx, companyID, accountID)
		return e
	})
	return corrected, err
}

func (r *repository) AccountIDs(ctx context.Context, companyID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM accounts WHERE company_id=$1 ORDER BY id ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
