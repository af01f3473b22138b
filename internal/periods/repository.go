package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quill/internal/accounts"
	"github.com/quillbooks/quill/internal/journal"
	"github.com/quillbooks/quill/internal/shared"
)

// AccountActivity is one revenue or expense account's in-period totals.
type AccountActivity struct {
	AccountID int64
	Type      accounts.AccountType
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Repository encapsulates DB operations for accounting periods.
type Repository interface {
	Get(ctx context.Context, companyID, id int64) (Period, error)
	List(ctx context.Context, companyID int64) ([]Period, error)
	FindForDate(ctx context.Context, companyID int64, date time.Time) (Period, error)
	RangeConflict(ctx context.Context, companyID int64, start, end time.Time) (bool, error)
	Insert(ctx context.Context, in CreateInput) (Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes period mutations inside a transaction. Journal gives
// tx-scoped access to the posting engine so closing entries and period status
// flips commit together.
type TxRepository interface {
	Journal() journal.TxRepository
	LoadPeriodForUpdate(ctx context.Context, companyID, id int64) (Period, error)
	MarkClosed(ctx context.Context, id, closedBy int64, closedAt time.Time, closingEntryID *int64) error
	MarkOpen(ctx context.Context, id int64) error
	MarkLocked(ctx context.Context, id int64) error
	HasPostedActivity(ctx context.Context, companyID int64, p Period) (bool, error)
	RevenueExpenseActivity(ctx context.Context, companyID int64, start, end time.Time) ([]AccountActivity, error)
	RetainedEarningsAccount(ctx context.Context, companyID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed period repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, company_id, name, type, fiscal_year, start_date, end_date, status, closed_by, closed_at, closing_je_id, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Type, &p.FiscalYear, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.ClosingEntryID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE id=$1 AND company_id=$2`, id, companyID))
}

func (r *repository) List(ctx context.Context, companyID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE company_id=$1 ORDER BY start_date ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Type, &p.FiscalYear, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.ClosingEntryID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) FindForDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return scanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id=$1 AND start_date <= $2 AND end_date >= $2`, companyID, date))
}

func (r *repository) RangeConflict(ctx context.Context, companyID int64, start, end time.Time) (bool, error) {
	var conflict bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounting_periods
WHERE company_id=$1 AND start_date <= $3 AND end_date >= $2)`, companyID, start, end).Scan(&conflict)
	return conflict, err
}

func (r *repository) Insert(ctx context.Context, in CreateInput) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx, `INSERT INTO accounting_periods (company_id, name, type, fiscal_year, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING `+periodColumns,
		in.CompanyID, in.Name, in.Type, in.FiscalYear, in.StartDate, in.EndDate, shared.PeriodStatusOpen))
	if err != nil {
		var pgErr *pgconn.PgError
		// The exclusion constraint on (company_id, daterange) backstops the
		// service-level overlap check under concurrent creates.
		if errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01") {
			return Period{}, ErrPeriodOverlap
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, journal: journal.NewTxRepository(tx)}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx      pgx.Tx
	journal journal.TxRepository
}

func (r *txRepository) Journal() journal.TxRepository {
	return r.journal
}

func (r *txRepository) LoadPeriodForUpdate(ctx context.Context, companyID, id int64) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE id=$1 AND company_id=$2 FOR UPDATE`, id, companyID))
}

func (r *txRepository) MarkClosed(ctx context.Context, id, closedBy int64, closedAt time.Time, closingEntryID *int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status=$2, closed_by=$3, closed_at=$4, closing_je_id=$5, updated_at=NOW() WHERE id=$1`,
		id, shared.PeriodStatusClosed, closedBy, closedAt, closingEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkOpen(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status=$2, closed_by=NULL, closed_at=NULL, closing_je_id=NULL, updated_at=NOW() WHERE id=$1`,
		id, shared.PeriodStatusOpen)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) MarkLocked(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status=$2, updated_at=NOW() WHERE id=$1`, id, shared.PeriodStatusLocked)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) HasPostedActivity(ctx context.Context, companyID int64, p Period) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_entries
WHERE company_id=$1 AND date >= $2 AND date <= $3 AND status <> $4)`,
		companyID, p.StartDate, p.EndDate, journal.EntryStatusDraft).Scan(&exists)
	return exists, err
}

func (r *txRepository) RevenueExpenseActivity(ctx context.Context, companyID int64, start, end time.Time) ([]AccountActivity, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.type, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM accounts a
JOIN ledger_entries l ON l.account_id = a.id
WHERE a.company_id = $1 AND a.type IN ($2, $3) AND l.date >= $4 AND l.date <= $5
GROUP BY a.id, a.type
ORDER BY a.id ASC`, companyID, accounts.AccountTypeRevenue, accounts.AccountTypeExpense, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var a AccountActivity
		if err := rows.Scan(&a.AccountID, &a.Type, &a.Debit, &a.Credit); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *txRepository) RetainedEarningsAccount(ctx context.Context, companyID int64) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `SELECT id FROM accounts
WHERE company_id=$1 AND type=$2 AND subtype=$3 AND is_active ORDER BY id ASC LIMIT 1`,
		companyID, accounts.AccountTypeEquity, accounts.SubtypeRetainedEarnings).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNoRetainedEarnings
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounting_periods WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
