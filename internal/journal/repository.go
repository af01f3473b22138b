package journal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillbooks/quill/internal/ledger"
	"github.com/quillbooks/quill/internal/shared"
)

// PeriodRef is the slice of period state the posting path needs. Period
// lookups live here, inside the posting transaction, so the row lock and the
// status check happen in the same critical section (the full period lifecycle
// lives in the periods package).
type PeriodRef struct {
	ID        int64
	Status    string
	StartDate time.Time
	EndDate   time.Time
}

// Repository encapsulates DB operations for journals.
type Repository interface {
	GetEntry(ctx context.Context, companyID, entryID int64) (JournalEntry, error)
	List(ctx context.Context, companyID int64, limit, offset int) ([]JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	InsertEntry(ctx context.Context, in DraftInput, status EntryStatus, postedAt *time.Time) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	ReplaceLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	GetEntryWithLinesForUpdate(ctx context.Context, companyID, entryID int64) (JournalEntry, error)
	UpdateDraftHeader(ctx context.Context, entryID int64, date time.Time, memo string) error
	UpdateStatus(ctx context.Context, entryID int64, status EntryStatus, postedAt *time.Time) error
	SetReversal(ctx context.Context, originalID, reversalID int64) error
	DeleteEntry(ctx context.Context, entryID int64) error
	AccountsUsable(ctx context.Context, companyID int64, accountIDs []int64) (map[int64]bool, error)

	// GetPeriodForDateForUpdate locks the period covering date, mirroring the
	// periods repository for transaction context.
	GetPeriodForDateForUpdate(ctx context.Context, companyID int64, date time.Time) (PeriodRef, error)

	// Project materializes ledger entries for a posted entry and reports
	// accounts whose stored balances went stale from backdating.
	Project(ctx context.Context, p ledger.Posting) ([]int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed journal repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, company_id, date, type, status, memo, created_by, source_kind, source_id, reverses_id, reversed_by_id, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var sourceKind, sourceID *string
	err := row.Scan(&e.ID, &e.CompanyID, &e.Date, &e.Type, &e.Status, &e.Memo, &e.CreatedBy, &sourceKind, &sourceID, &e.ReversesID, &e.ReversedByID, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrNotFound
		}
		return JournalEntry{}, err
	}
	if sourceKind != nil && sourceID != nil {
		e.Source = &SourceRef{Kind: SourceKind(*sourceKind), ID: *sourceID}
	}
	return e, nil
}

func (r *repository) GetEntry(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 AND company_id=$2`, entryID, companyID))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := loadLines(ctx, r.db, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) List(ctx context.Context, companyID int64, limit, offset int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id=$1 ORDER BY date DESC, id DESC LIMIT $2 OFFSET $3`, companyID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var sourceKind, sourceID *string
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Date, &e.Type, &e.Status, &e.Memo, &e.CreatedBy, &sourceKind, &sourceID, &e.ReversesID, &e.ReversedByID, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if sourceKind != nil && sourceID != nil {
			e.Source = &SourceRef{Kind: SourceKind(*sourceKind), ID: *sourceID}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an existing transaction. The periods package uses this
// to run close and reopen postings inside its own period-locked transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q queryer, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, je_id, account_id, debit, credit, memo FROM journal_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, in DraftInput, status EntryStatus, postedAt *time.Time) (JournalEntry, error) {
	var sourceKind, sourceID *string
	if in.Source != nil {
		kind := string(in.Source.Kind)
		id := in.Source.ID
		sourceKind, sourceID = &kind, &id
	}
	entry, err := scanEntry(r.tx.QueryRow(ctx, `INSERT INTO journal_entries (company_id, date, type, status, memo, created_by, source_kind, source_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+entryColumns,
		in.CompanyID, in.Date, in.Type, status, in.Memo, in.CreatedBy, sourceKind, sourceID, postedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return JournalEntry{}, ErrSourceAlreadyLinked
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		var inserted JournalLine
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (je_id, account_id, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5) RETURNING id, je_id, account_id, debit, credit, memo`,
			entryID, line.AccountID, line.Debit, line.Credit, line.Memo).
			Scan(&inserted.ID, &inserted.EntryID, &inserted.AccountID, &inserted.Debit, &inserted.Credit, &inserted.Memo)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE je_id=$1`, entryID); err != nil {
		return nil, err
	}
	return r.InsertLines(ctx, entryID, lines)
}

func (r *txRepository) GetEntryWithLinesForUpdate(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 AND company_id=$2 FOR UPDATE`, entryID, companyID))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := loadLines(ctx, r.tx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *txRepository) UpdateDraftHeader(ctx context.Context, entryID int64, date time.Time, memo string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET date=$2, memo=$3, updated_at=NOW() WHERE id=$1`, entryID, date, memo)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, entryID int64, status EntryStatus, postedAt *time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, posted_at=COALESCE($3, posted_at), updated_at=NOW() WHERE id=$1`, entryID, status, postedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) SetReversal(ctx context.Context, originalID, reversalID int64) error {
	if _, err := r.tx.Exec(ctx, `UPDATE journal_entries SET reversed_by_id=$2, updated_at=NOW() WHERE id=$1`, originalID, reversalID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE journal_entries SET reverses_id=$2, updated_at=NOW() WHERE id=$1`, reversalID, originalID)
	return err
}

func (r *txRepository) DeleteEntry(ctx context.Context, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE je_id=$1`, entryID); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) AccountsUsable(ctx context.Context, companyID int64, accountIDs []int64) (map[int64]bool, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, is_active FROM accounts WHERE company_id=$1 AND id = ANY($2)`, companyID, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]bool, len(accountIDs))
	for rows.Next() {
		var id int64
		var active bool
		if err := rows.Scan(&id, &active); err != nil {
			return nil, err
		}
		out[id] = active
	}
	return out, rows.Err()
}

func (r *txRepository) GetPeriodForDateForUpdate(ctx context.Context, companyID int64, date time.Time) (PeriodRef, error) {
	var p PeriodRef
	err := r.tx.QueryRow(ctx, `SELECT id, status, start_date, end_date FROM accounting_periods
WHERE company_id=$1 AND start_date <= $2 AND end_date >= $2 FOR UPDATE`, companyID, date).
		Scan(&p.ID, &p.Status, &p.StartDate, &p.EndDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PeriodRef{}, ErrNoPeriodForDate
		}
		return PeriodRef{}, err
	}
	return p, nil
}

func (r *txRepository) Project(ctx context.Context, p ledger.Posting) ([]int64, error) {
	return ledger.Project(ctx, r.tx, p)
}
