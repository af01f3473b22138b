package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/quillbooks/quill/internal/ledger"
	"github.com/quillbooks/quill/internal/shared"
)

// AuditPort records journal events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// RepairEnqueuer schedules a ledger repair for accounts whose stored balances
// went stale after a backdated posting.
type RepairEnqueuer interface {
	EnqueueLedgerRepair(ctx context.Context, companyID, accountID int64) error
}

// ReportCache invalidates cached report output after a posting changes the
// ledger.
type ReportCache interface {
	Bump(ctx context.Context, companyID int64) error
}

// Service coordinates drafting, posting, and voiding journal entries.
type Service struct {
	repo    Repository
	authz   shared.Authorizer
	audit   AuditPort
	repairs RepairEnqueuer
	cache   ReportCache
	now     func() time.Time
}

// NewService constructs the journal engine.
func NewService(repo Repository, authz shared.Authorizer, audit AuditPort) *Service {
	return &Service{repo: repo, authz: authz, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithRepairEnqueuer wires the background repair scheduler.
func (s *Service) WithRepairEnqueuer(e RepairEnqueuer) {
	s.repairs = e
}

// WithReportCache wires report cache invalidation.
func (s *Service) WithReportCache(c ReportCache) {
	s.cache = c
}

// CreateDraft validates and persists a new draft entry. Every line must
// reference a live account of the submitting company; violations across all
// lines are reported together.
func (s *Service) CreateDraft(ctx context.Context, actorID int64, in DraftInput) (JournalEntry, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermJournalCreate); err != nil {
		return JournalEntry{}, err
	}
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.checkAccounts(ctx, tx, in.CompanyID, in.Lines); err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, in, EntryStatusDraft, nil)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted.ID, in.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, in.CompanyID, actorID, "journal.draft", entry.ID, map[string]any{"type": string(in.Type)})
	return entry, nil
}

// UpdateDraft replaces a draft's header and lines. Posted entries are
// immutable; corrections go through Void.
func (s *Service) UpdateDraft(ctx context.Context, actorID int64, in UpdateDraftInput) (JournalEntry, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermJournalCreate); err != nil {
		return JournalEntry{}, err
	}
	if in.Date.IsZero() {
		return JournalEntry{}, &ValidationError{Issues: []string{"transaction date required"}}
	}
	if err := ValidateLines(in.Lines); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryWithLinesForUpdate(ctx, in.CompanyID, in.EntryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return ErrNotDraft
		}
		if err := s.checkAccounts(ctx, tx, in.CompanyID, in.Lines); err != nil {
			return err
		}
		if err := tx.UpdateDraftHeader(ctx, current.ID, in.Date, in.Memo); err != nil {
			return err
		}
		lines, err := tx.ReplaceLines(ctx, current.ID, in.Lines)
		if err != nil {
			return err
		}
		current.Date = in.Date
		current.Memo = in.Memo
		current.Lines = lines
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// DeleteDraft removes a draft. Posted and voided entries are never deleted.
func (s *Service) DeleteDraft(ctx context.Context, actorID, companyID, entryID int64) error {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermJournalCreate); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryWithLinesForUpdate(ctx, companyID, entryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return ErrNotDraft
		}
		return tx.DeleteEntry(ctx, current.ID)
	})
}

// Post re-validates the draft, confirms its date falls in an open period, and
// materializes ledger lines. The status flip and all ledger writes share one
// transaction; a partially posted entry is never observable.
func (s *Service) Post(ctx context.Context, actorID, companyID, entryID int64) (JournalEntry, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermJournalPost); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	var stale []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryWithLinesForUpdate(ctx, companyID, entryID)
		if err != nil {
			return err
		}
		if current.Status != EntryStatusDraft {
			return ErrNotDraft
		}
		lines := toLineInputs(current.Lines)
		if err := ValidateLines(lines); err != nil {
			return err
		}
		if err := s.checkAccounts(ctx, tx, companyID, lines); err != nil {
			return err
		}
		period, err := tx.GetPeriodForDateForUpdate(ctx, companyID, current.Date)
		if err != nil {
			return err
		}
		if err := periodAcceptsPosting(period); err != nil {
			return err
		}
		postedAt := s.now()
		if err := tx.UpdateStatus(ctx, current.ID, EntryStatusPosted, &postedAt); err != nil {
			return err
		}
		stale, err = tx.Project(ctx, toPosting(current))
		if err != nil {
			return err
		}
		current.Status = EntryStatusPosted
		current.PostedAt = &postedAt
		entry = current
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.afterLedgerWrite(ctx, companyID, stale)
	s.record(ctx, companyID, actorID, "journal.post", entry.ID, map[string]any{"date": entry.Date.Format("2006-01-02")})
	return entry, nil
}

// Void reverses a posted entry. The original is never deleted or edited; a new
// entry with debit/credit sides flipped is posted, dated at void time, and the
// original is marked VOID exactly once.
func (s *Service) Void(ctx context.Context, actorID, companyID, entryID int64, reason string) (JournalEntry, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermJournalVoid); err != nil {
		return JournalEntry{}, err
	}
	var reversal JournalEntry
	var stale []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, stale, err = s.voidInTx(ctx, tx, voidParams{
			companyID: companyID,
			entryID:   entryID,
			actorID:   actorID,
			reason:    reason,
		})
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.afterLedgerWrite(ctx, companyID, stale)
	s.record(ctx, companyID, actorID, "journal.void", entryID, map[string]any{"reversal_id": reversal.ID, "reason": reason})
	return reversal, nil
}

// Get returns one entry with lines.
func (s *Service) Get(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, companyID, entryID)
}

// List returns entries newest first.
func (s *Service) List(ctx context.Context, companyID int64, limit, offset int) ([]JournalEntry, error) {
	return s.repo.List(ctx, companyID, limit, offset)
}

// PostClosingInTx validates and posts a closing entry inside the caller's
// period-locked transaction. Used by the period close path so the closing
// entry and the period status change commit together.
func (s *Service) PostClosingInTx(ctx context.Context, tx TxRepository, in DraftInput) (JournalEntry, error) {
	in.Type = EntryTypeClosing
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if err := s.checkAccounts(ctx, tx, in.CompanyID, in.Lines); err != nil {
		return JournalEntry{}, err
	}
	postedAt := s.now()
	entry, err := tx.InsertEntry(ctx, in, EntryStatusPosted, &postedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := tx.InsertLines(ctx, entry.ID, in.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	if _, err := tx.Project(ctx, toPosting(entry)); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// VoidClosingInTx voids a closing entry inside the caller's transaction during
// period reopen. This is the one place a void is legal in a CLOSED period:
// undoing the close is exactly what reopening means. The reversal is dated at
// the original closing date so the reopened period nets back to its pre-close
// balances.
func (s *Service) VoidClosingInTx(ctx context.Context, tx TxRepository, companyID, entryID, actorID int64) (JournalEntry, error) {
	reversal, _, err := s.voidInTx(ctx, tx, voidParams{
		companyID:      companyID,
		entryID:        entryID,
		actorID:        actorID,
		reason:         "period reopen",
		allowClosed:    true,
		reverseAtEntry: true,
	})
	return reversal, err
}

type voidParams struct {
	companyID      int64
	entryID        int64
	actorID        int64
	reason         string
	allowClosed    bool
	reverseAtEntry bool
}

func (s *Service) voidInTx(ctx context.Context, tx TxRepository, req voidParams) (JournalEntry, []int64, error) {
	original, err := tx.GetEntryWithLinesForUpdate(ctx, req.companyID, req.entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	switch original.Status {
	case EntryStatusPosted:
	case EntryStatusVoid:
		return JournalEntry{}, nil, ErrAlreadyVoided
	default:
		return JournalEntry{}, nil, ErrNotPosted
	}
	if req.allowClosed && original.Type != EntryTypeClosing {
		return JournalEntry{}, nil, fmt.Errorf("journal: closed-period void only applies to closing entries")
	}

	originalPeriod, err := tx.GetPeriodForDateForUpdate(ctx, req.companyID, original.Date)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	if !req.allowClosed {
		if err := periodAcceptsPosting(originalPeriod); err != nil {
			return JournalEntry{}, nil, err
		}
	}

	// Reversals are dated at void time so already-reported periods are not
	// retroactively perturbed. The closing-entry reversal during reopen is the
	// exception and lands on the original date.
	reversalDate := s.now()
	if req.reverseAtEntry {
		reversalDate = original.Date
	}
	if !req.allowClosed && !sameRange(originalPeriod, reversalDate) {
		reversalPeriod, err := tx.GetPeriodForDateForUpdate(ctx, req.companyID, reversalDate)
		if err != nil {
			return JournalEntry{}, nil, err
		}
		if err := periodAcceptsPosting(reversalPeriod); err != nil {
			return JournalEntry{}, nil, err
		}
	}

	postedAt := s.now()
	reversal, err := tx.InsertEntry(ctx, DraftInput{
		CompanyID: req.companyID,
		Date:      reversalDate,
		Type:      EntryTypeSystem,
		Memo:      reversalMemo(req.reason, original.ID),
		CreatedBy: req.actorID,
		Source:    &SourceRef{Kind: SourceReversal, ID: fmt.Sprintf("%d", original.ID)},
		Lines:     reverseLines(original.Lines),
	}, EntryStatusPosted, &postedAt)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	lines, err := tx.InsertLines(ctx, reversal.ID, reverseLines(original.Lines))
	if err != nil {
		return JournalEntry{}, nil, err
	}
	reversal.Lines = lines
	stale, err := tx.Project(ctx, toPosting(reversal))
	if err != nil {
		return JournalEntry{}, nil, err
	}
	if err := tx.UpdateStatus(ctx, original.ID, EntryStatusVoid, nil); err != nil {
		return JournalEntry{}, nil, err
	}
	if err := tx.SetReversal(ctx, original.ID, reversal.ID); err != nil {
		return JournalEntry{}, nil, err
	}
	return reversal, stale, nil
}

// checkAccounts verifies every referenced account exists, belongs to the
// company, and is active. All offending lines are reported together.
func (s *Service) checkAccounts(ctx context.Context, tx TxRepository, companyID int64, lines []LineInput) error {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if line.AccountID != 0 {
			ids = append(ids, line.AccountID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	usable, err := tx.AccountsUsable(ctx, companyID, ids)
	if err != nil {
		return err
	}
	var issues []string
	for idx, line := range lines {
		active, ok := usable[line.AccountID]
		if !ok {
			issues = append(issues, fmt.Sprintf("line %d: account %d not found for company", idx, line.AccountID))
			continue
		}
		if !active {
			issues = append(issues, fmt.Sprintf("line %d: account %d is inactive", idx, line.AccountID))
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func (s *Service) afterLedgerWrite(ctx context.Context, companyID int64, staleAccounts []int64) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx, companyID)
	}
	if s.repairs != nil {
		for _, accountID := range staleAccounts {
			_ = s.repairs.EnqueueLedgerRepair(ctx, companyID, accountID)
		}
	}
}

func (s *Service) record(ctx context.Context, companyID, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "journal_entry",
		EntityID:  fmt.Sprintf("%d", entryID),
		Meta:      meta,
		At:        s.now(),
	})
}

func periodAcceptsPosting(p PeriodRef) error {
	switch p.Status {
	case shared.PeriodStatusOpen:
		return nil
	case shared.PeriodStatusLocked:
		return ErrPeriodLocked
	default:
		return ErrPeriodClosed
	}
}

func sameRange(p PeriodRef, date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

func toLineInputs(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit, Memo: line.Memo})
	}
	return out
}

func toPosting(entry JournalEntry) ledger.Posting {
	p := ledger.Posting{CompanyID: entry.CompanyID, EntryID: entry.ID, Date: entry.Date}
	for _, line := range entry.Lines {
		p.Lines = append(p.Lines, ledger.PostingLine{
			LineID:    line.ID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return p
}

func reversalMemo(reason string, originalID int64) string {
	if reason != "" {
		return reason
	}
	return fmt.Sprintf("Reversal of JE %d", originalID)
}
