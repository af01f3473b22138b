package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quill/internal/accounts"
)

// lockedAccount is the slice of account state the projector needs under lock.
type lockedAccount struct {
	ID         int64
	CompanyID  int64
	NormalSide accounts.NormalSide
	IsActive   bool
}

// Project appends one ledger entry per posting line inside the caller's
// transaction. Account rows are locked FOR UPDATE in ascending id order so
// concurrent postings touching the same accounts serialize without deadlocking,
// and the per-account sequence is allocated under that lock.
//
// The previous balance for a line dated D is the entry with the greatest
// (date, seq) where date <= D. The comparison is inclusive: two entries on the
// same day chain off each other instead of both starting from the balance
// before that day.
//
// Returns the account ids whose stored balances went stale because the posting
// was backdated; callers schedule a repair fold for those.
func Project(ctx context.Context, tx pgx.Tx, p Posting) ([]int64, error) {
	accs, err := lockAccounts(ctx, tx, p)
	if err != nil {
		return nil, err
	}

	var stale []int64
	for _, line := range p.Lines {
		acc := accs[line.AccountID]

		var seq int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_entries WHERE account_id=$1`, line.AccountID).Scan(&seq); err != nil {
			return nil, fmt.Errorf("ledger: next seq for account %d: %w", line.AccountID, err)
		}
		seq++

		prev, err := previousBalance(ctx, tx, line.AccountID, p.Date)
		if err != nil {
			return nil, err
		}
		balance := prev.Add(Delta(acc.NormalSide, line.Debit, line.Credit))

		if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries (company_id, account_id, je_id, je_line_id, date, debit, credit, running_balance, seq)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			p.CompanyID, line.AccountID, p.EntryID, line.LineID, p.Date, line.Debit, line.Credit, balance, seq); err != nil {
			return nil, fmt.Errorf("ledger: insert entry: %w", err)
		}

		behind, err := hasLaterEntries(ctx, tx, line.AccountID, p.Date, seq)
		if err != nil {
			return nil, err
		}
		if behind {
			stale = append(stale, line.AccountID)
		}
	}
	return dedupe(stale), nil
}

func lockAccounts(ctx context.Context, tx pgx.Tx, p Posting) (map[int64]lockedAccount, error) {
	ids := make([]int64, 0, len(p.Lines))
	seen := make(map[int64]bool, len(p.Lines))
	for _, line := range p.Lines {
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			ids = append(ids, line.AccountID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows, err := tx.Query(ctx, `SELECT id, company_id, normal_side, is_active FROM accounts WHERE id = ANY($1) ORDER BY id ASC FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("ledger: lock accounts: %w", err)
	}
	defer rows.Close()

	accs := make(map[int64]lockedAccount, len(ids))
	for rows.Next() {
		var a lockedAccount
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.NormalSide, &a.IsActive); err != nil {
			return nil, err
		}
		accs[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		acc, ok := accs[id]
		if !ok {
			return nil, fmt.Errorf("ledger: account %d does not exist", id)
		}
		if acc.CompanyID != p.CompanyID {
			return nil, fmt.Errorf("ledger: account %d belongs to another company", id)
		}
	}
	return accs, nil
}

func previousBalance(ctx context.Context, tx pgx.Tx, accountID int64, date time.Time) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := tx.QueryRow(ctx, `SELECT running_balance FROM ledger_entries WHERE account_id=$1 AND date <= $2 ORDER BY date DESC, seq DESC LIMIT 1`, accountID, date).Scan(&bal)
	if err != nil {
		if err == pgx.ErrNoRows {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("ledger: previous balance for account %d: %w", accountID, err)
	}
	return bal, nil
}

func hasLaterEntries(ctx context.Context, tx pgx.Tx, accountID int64, date time.Time, seq int64) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE account_id=$1 AND (date > $2 OR (date = $2 AND seq > $3)))`, accountID, date, seq).Scan(&exists)
	return exists, err
}

func dedupe(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// RepairAccount walks every ledger entry for the account in total order and
// recomputes running balances from zero, rewriting any entry whose stored
// balance deviates beyond RepairTolerance. The fold is idempotent; running it
// twice changes nothing the second time. Returns the number of corrected rows.
func RepairAccount(ctx context.Context, tx pgx.Tx, companyID, accountID int64) (int, error) {
	var side accounts.NormalSide
	err := tx.QueryRow(ctx, `SELECT normal_side FROM accounts WHERE id=$1 AND company_id=$2 FOR UPDATE`, accountID, companyID).Scan(&side)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("ledger: account %d not found", accountID)
		}
		return 0, err
	}

	rows, err := tx.Query(ctx, `SELECT id, debit, credit, running_balance FROM ledger_entries WHERE account_id=$1 ORDER BY date ASC, seq ASC`, accountID)
	if err != nil {
		return 0, err
	}
	type row struct {
		id            int64
		debit, credit decimal.Decimal
		storedBalance decimal.Decimal
	}
	var entries []row
	for rows.Next() {
		var e row
		if err := rows.Scan(&e.id, &e.debit, &e.credit, &e.storedBalance); err != nil {
			rows.Close()
			return 0, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	balance := decimal.Zero
	corrected := 0
	for i := range entries {
		balance = balance.Add(Delta(side, entries[i].debit, entries[i].credit))
		if entries[i].storedBalance.Sub(balance).Abs().GreaterThan(RepairTolerance) {
			if _, err := tx.Exec(ctx, `UPDATE ledger_entries SET running_balance=$2 WHERE id=$1`, entries[i].id, balance); err != nil {
				return corrected, err
			}
			corrected++
		}
	}
	return corrected, nil
}
