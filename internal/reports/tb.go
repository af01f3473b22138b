package reports

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quillbooks/quill/internal/accounts"
)

// ErrLedgerIntegrity indicates the ledger's global debit/credit invariant is
// broken. Reports refuse to return plausible-looking numbers when this fires.
var ErrLedgerIntegrity = errors.New("reports: ledger integrity violation")

// AccountBalance models one account's aggregated debit/credit totals.
type AccountBalance struct {
	AccountID  int64
	Code       string
	Name       string
	Type       accounts.AccountType
	NormalSide accounts.NormalSide
	Debit      decimal.Decimal
	Credit     decimal.Decimal
}

// Balance reports the account total signed per its normal side.
func (a AccountBalance) Balance() decimal.Decimal {
	if a.NormalSide == accounts.NormalSideDebit {
		return a.Debit.Sub(a.Credit)
	}
	return a.Credit.Sub(a.Debit)
}

// TrialBalanceRow is one account line of the trial balance.
type TrialBalanceRow struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Balance   decimal.Decimal `json:"balance"`
}

// TrialBalance is the aggregated report as of a date.
type TrialBalance struct {
	AsOf        time.Time         `json:"as_of"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
}

// BuildTrialBalance aggregates account balances and asserts the global
// invariant: total debits equal total credits exactly. A mismatch means the
// ledger itself is inconsistent and is surfaced as ErrLedgerIntegrity, never
// rounded away.
func BuildTrialBalance(asOf time.Time, balances []AccountBalance) (TrialBalance, error) {
	tb := TrialBalance{AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, acc := range balances {
		tb.Rows = append(tb.Rows, TrialBalanceRow{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Type:      string(acc.Type),
			Debit:     acc.Debit,
			Credit:    acc.Credit,
			Balance:   acc.Balance(),
		})
		tb.TotalDebit = tb.TotalDebit.Add(acc.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(acc.Credit)
	}
	sort.Slice(tb.Rows, func(i, j int) bool { return tb.Rows[i].Code < tb.Rows[j].Code })
	if !tb.TotalDebit.Equal(tb.TotalCredit) {
		return TrialBalance{}, fmt.Errorf("%w: total debit %s != total credit %s",
			ErrLedgerIntegrity, tb.TotalDebit.String(), tb.TotalCredit.String())
	}
	return tb, nil
}
