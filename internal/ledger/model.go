package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quillbooks/quill/internal/accounts"
)

// Entry is the denormalized projection of one posted journal line. Entries are
// append-only; a void adds reversing entries, it never mutates old ones. The
// repair fold is the only writer allowed to touch stored running balances.
type Entry struct {
	ID             int64
	CompanyID      int64
	AccountID      int64
	JournalEntryID int64
	JournalLineID  int64
	Date           time.Time
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
	Seq            int64
	CreatedAt      time.Time
}

// Posting carries the lines of a newly posted journal entry into the projector.
type Posting struct {
	CompanyID int64
	EntryID   int64
	Date      time.Time
	Lines     []PostingLine
}

// PostingLine is one journal line to be materialized.
type PostingLine struct {
	LineID    int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// GeneralLedgerAccount groups one account's posted activity within a range,
// bracketed by the balances carried into and out of it.
type GeneralLedgerAccount struct {
	AccountID int64
	Code      string
	Name      string
	Opening   decimal.Decimal
	Entries   []Entry
	Closing   decimal.Decimal
}

// GeneralLedger is the per-account view of the ledger over [From, To].
type GeneralLedger struct {
	From     time.Time
	To       time.Time
	Accounts []GeneralLedgerAccount
}

// Delta returns the signed balance movement of a debit/credit pair for an
// account with the given normal side.
func Delta(side accounts.NormalSide, debit, credit decimal.Decimal) decimal.Decimal {
	if side == accounts.NormalSideDebit {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}

// RepairTolerance absorbs legitimate rounding when recomputing balances.
var RepairTolerance = decimal.NewFromFloat(0.01)
