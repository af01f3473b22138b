package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalSide is the side on which an account naturally carries its balance.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "DEBIT"
	NormalSideCredit NormalSide = "CREDIT"
)

// SubtypeRetainedEarnings marks the equity account that absorbs closing entries.
const SubtypeRetainedEarnings = "RETAINED_EARNINGS"

// Account models a chart of accounts node. CachedBalance is advisory; the
// ledger is the source of truth and the cache is recomputed from it, never
// incrementally mutated.
type Account struct {
	ID            int64
	CompanyID     int64
	Code          string
	Name          string
	Type          AccountType
	Subtype       string
	ParentID      *int64
	NormalSide    NormalSide
	CachedBalance decimal.Decimal
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DefaultNormalSide returns the natural balance side for an account type.
func DefaultNormalSide(t AccountType) NormalSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalSideDebit
	default:
		return NormalSideCredit
	}
}

// ValidType reports whether t is a known account type.
func ValidType(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	default:
		return false
	}
}
