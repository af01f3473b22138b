package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quill/internal/accounts"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func asOf() time.Time {
	return time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
}

func TestBuildTrialBalanceNetsToZero(t *testing.T) {
	balances := []AccountBalance{
		{AccountID: 1, Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, NormalSide: accounts.NormalSideDebit, Debit: amount("1500"), Credit: amount("500")},
		{AccountID: 2, Code: "4000", Name: "Sales", Type: accounts.AccountTypeRevenue, NormalSide: accounts.NormalSideCredit, Debit: decimal.Zero, Credit: amount("1500")},
		{AccountID: 3, Code: "5000", Name: "Rent", Type: accounts.AccountTypeExpense, NormalSide: accounts.NormalSideDebit, Debit: amount("500"), Credit: decimal.Zero},
	}

	tb, err := BuildTrialBalance(asOf(), balances)
	require.NoError(t, err)
	assert.True(t, tb.TotalDebit.Equal(amount("2000")))
	assert.True(t, tb.TotalCredit.Equal(amount("2000")))
	require.Len(t, tb.Rows, 3)
	assert.Equal(t, "1000", tb.Rows[0].Code)
	assert.True(t, tb.Rows[0].Balance.Equal(amount("1000")))
	assert.True(t, tb.Rows[1].Balance.Equal(amount("1500")))
}

func TestBuildTrialBalanceSortsByCode(t *testing.T) {
	balances := []AccountBalance{
		{AccountID: 2, Code: "4000", NormalSide: accounts.NormalSideCredit, Debit: decimal.Zero, Credit: amount("100")},
		{AccountID: 1, Code: "1000", NormalSide: accounts.NormalSideDebit, Debit: amount("100"), Credit: decimal.Zero},
	}

	tb, err := BuildTrialBalance(asOf(), balances)
	require.NoError(t, err)
	assert.Equal(t, "1000", tb.Rows[0].Code)
	assert.Equal(t, "4000", tb.Rows[1].Code)
}

func TestBuildTrialBalanceEmptyLedger(t *testing.T) {
	tb, err := BuildTrialBalance(asOf(), nil)
	require.NoError(t, err)
	assert.Empty(t, tb.Rows)
	assert.True(t, tb.TotalDebit.IsZero())
	assert.True(t, tb.TotalCredit.IsZero())
}

// A ledger whose totals do not balance must never render a report.
func TestBuildTrialBalanceIntegrityViolation(t *testing.T) {
	balances := []AccountBalance{
		{AccountID: 1, Code: "1000", NormalSide: accounts.NormalSideDebit, Debit: amount("100"), Credit: decimal.Zero},
		{AccountID: 2, Code: "4000", NormalSide: accounts.NormalSideCredit, Debit: decimal.Zero, Credit: amount("90")},
	}

	tb, err := BuildTrialBalance(asOf(), balances)
	assert.ErrorIs(t, err, ErrLedgerIntegrity)
	assert.Empty(t, tb.Rows)
}
