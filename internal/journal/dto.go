package journal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrPeriodClosed indicates the transaction date falls in a closed period.
	ErrPeriodClosed = errors.New("journal: period is closed")
	// ErrPeriodLocked indicates the transaction date falls in a locked period.
	ErrPeriodLocked = errors.New("journal: period is locked")
	// ErrNoPeriodForDate indicates no accounting period covers the date.
	ErrNoPeriodForDate = errors.New("journal: no accounting period covers the transaction date")
	// ErrNotDraft indicates a mutation attempt on a non-draft entry.
	ErrNotDraft = errors.New("journal: entry is not a draft")
	// ErrNotPosted indicates a void attempt on an entry that was never posted.
	ErrNotPosted = errors.New("journal: entry is not posted")
	// ErrAlreadyVoided indicates void is not re-appliable.
	ErrAlreadyVoided = errors.New("journal: entry already voided")
	// ErrSourceAlreadyLinked indicates the source document already produced an entry.
	ErrSourceAlreadyLinked = errors.New("journal: source document already linked to an entry")
)

// ValidationError reports every offending line of a malformed entry at once so
// callers can correct the whole submission in one pass.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "journal: invalid entry: " + strings.Join(e.Issues, "; ")
}

// LineInput describes one journal line in a draft submission.
type LineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// DraftInput groups fields required to create a draft journal entry.
type DraftInput struct {
	CompanyID int64
	Date      time.Time
	Type      EntryType
	Memo      string
	CreatedBy int64
	Source    *SourceRef
	Lines     []LineInput
}

// UpdateDraftInput carries draft mutations. Lines replace the existing set.
type UpdateDraftInput struct {
	CompanyID int64
	EntryID   int64
	Date      time.Time
	Memo      string
	Lines     []LineInput
}

// ValidateLines checks line shape and exact decimal balance. All violations
// are accumulated into a single ValidationError.
func ValidateLines(lines []LineInput) error {
	var issues []string
	if len(lines) < 2 {
		issues = append(issues, "entry requires at least two lines")
	}
	debits := decimal.Zero
	credits := decimal.Zero
	for idx, line := range lines {
		if line.AccountID == 0 {
			issues = append(issues, fmt.Sprintf("line %d: account required", idx))
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			issues = append(issues, fmt.Sprintf("line %d: negative amount", idx))
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			issues = append(issues, fmt.Sprintf("line %d: cannot carry both debit and credit", idx))
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			issues = append(issues, fmt.Sprintf("line %d: debit or credit required", idx))
		}
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	if !debits.Equal(credits) {
		issues = append(issues, fmt.Sprintf("entry not balanced: debit %s != credit %s", debits.String(), credits.String()))
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Validate checks a draft submission before it reaches the repository.
func (in DraftInput) Validate() error {
	var issues []string
	if in.CompanyID == 0 {
		issues = append(issues, "company required")
	}
	if in.Date.IsZero() {
		issues = append(issues, "transaction date required")
	}
	switch in.Type {
	case EntryTypeManual, EntryTypeSystem, EntryTypeClosing:
	case "":
		issues = append(issues, "entry type required")
	default:
		issues = append(issues, fmt.Sprintf("unknown entry type %q", in.Type))
	}
	if err := ValidateLines(in.Lines); err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			issues = append(issues, vErr.Issues...)
		} else {
			return err
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// reverseLines flips every line's debit/credit sides.
func reverseLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
			Memo:      line.Memo,
		})
	}
	return out
}
