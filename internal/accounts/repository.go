package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quill/internal/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	Insert(ctx context.Context, in CreateInput, side NormalSide) (Account, error)
	Update(ctx context.Context, acc Account) error
	Get(ctx context.Context, companyID, id int64) (Account, error)
	List(ctx context.Context, companyID int64) ([]Account, error)
	HasLedgerActivity(ctx context.Context, accountID int64) (bool, error)
	LatestRunningBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	SetCachedBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	SetActive(ctx context.Context, companyID, id int64, active bool) error
	Delete(ctx context.Context, companyID, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, company_id, code, name, type, subtype, parent_id, normal_side, cached_balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.NormalSide, &a.CachedBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Insert(ctx context.Context, in CreateInput, side NormalSide) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, type, subtype, parent_id, normal_side, cached_balance, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,0,TRUE) RETURNING `+accountColumns,
		in.CompanyID, in.Code, in.Name, in.Type, in.Subtype, in.ParentID, side)
	acc, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrCodeTaken
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *repository) Update(ctx context.Context, acc Account) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET name=$3, subtype=$4, parent_id=$5, updated_at=NOW() WHERE id=$1 AND company_id=$2`,
		acc.ID, acc.CompanyID, acc.Name, acc.Subtype, acc.ParentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 AND company_id=$2`, id, companyID)
	return scanAccount(row)
}

func (r *repository) List(ctx context.Context, companyID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.NormalSide, &a.CachedBalance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) HasLedgerActivity(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE account_id=$1)`, accountID).Scan(&exists)
	return exists, err
}

func (r *repository) LatestRunningBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT running_balance FROM ledger_entries WHERE account_id=$1 ORDER BY date DESC, seq DESC LIMIT 1`, accountID).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return bal, nil
}

func (r *repository) SetCachedBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts SET cached_balance=$2, updated_at=NOW() WHERE id=$1`, accountID, balance)
	return err
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id=$1 AND company_id=$2`, id, companyID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetActive(ctx context.Context, companyID, id int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE id=$1 AND company_id=$2`, id, companyID, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
