package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/quillbooks/quill/internal/accounts"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDeltaDebitNormal(t *testing.T) {
	d := Delta(accounts.NormalSideDebit, amount("1000"), decimal.Zero)
	assert.True(t, d.Equal(amount("1000")))

	d = Delta(accounts.NormalSideDebit, decimal.Zero, amount("300"))
	assert.True(t, d.Equal(amount("-300")))
}

func TestDeltaCreditNormal(t *testing.T) {
	d := Delta(accounts.NormalSideCredit, decimal.Zero, amount("1000"))
	assert.True(t, d.Equal(amount("1000")))

	d = Delta(accounts.NormalSideCredit, amount("250"), decimal.Zero)
	assert.True(t, d.Equal(amount("-250")))
}

// Two postings on the same day chain off each other: the second starts from the
// first's balance, not from the balance before that day.
func TestSameDayBalancesChain(t *testing.T) {
	balance := decimal.Zero
	balance = balance.Add(Delta(accounts.NormalSideDebit, amount("1000"), decimal.Zero))
	assert.True(t, balance.Equal(amount("1000")))

	balance = balance.Add(Delta(accounts.NormalSideDebit, amount("500"), decimal.Zero))
	assert.True(t, balance.Equal(amount("1500")))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, dedupe([]int64{3, 1, 3, 2, 1}))
	assert.Equal(t, []int64{5}, dedupe([]int64{5}))
	assert.Empty(t, dedupe(nil))
}
