package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType distinguishes manual entries from system-generated ones. The
// engine itself treats all types identically except CLOSING, which has
// special void semantics during period reopen.
type EntryType string

const (
	EntryTypeManual  EntryType = "MANUAL"
	EntryTypeSystem  EntryType = "SYSTEM"
	EntryTypeClosing EntryType = "CLOSING"
)

// EntryStatus enumerates the journal lifecycle. DRAFT is mutable; POSTED and
// VOID are immutable. Corrections to posted entries go through Void plus a new
// entry, never in-place edits.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "DRAFT"
	EntryStatusPosted EntryStatus = "POSTED"
	EntryStatusVoid   EntryStatus = "VOID"
)

// SourceKind tags the document a journal entry originates from.
type SourceKind string

const (
	SourceInvoice     SourceKind = "INVOICE"
	SourceBill        SourceKind = "BILL"
	SourcePayment     SourceKind = "PAYMENT"
	SourcePeriodClose SourceKind = "PERIOD_CLOSE"
	SourceReversal    SourceKind = "REVERSAL"
)

// SourceRef is the tagged link to a source document. One variant field pair
// instead of a nullable foreign key per document type.
type SourceRef struct {
	Kind SourceKind
	ID   string
}

// JournalEntry captures posting metadata and its lines.
type JournalEntry struct {
	ID           int64
	CompanyID    int64
	Date         time.Time
	Type         EntryType
	Status       EntryStatus
	Memo         string
	CreatedBy    int64
	Source       *SourceRef
	ReversesID   *int64
	ReversedByID *int64
	PostedAt     *time.Time
	Lines        []JournalLine
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JournalLine stores a debit or credit amount for an account. Exactly one of
// Debit/Credit is non-zero.
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}
