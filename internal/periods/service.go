package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quill/internal/accounts"
	"github.com/quillbooks/quill/internal/journal"
	"github.com/quillbooks/quill/internal/shared"
)

// AuditPort records period lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the period lifecycle. Close and reopen are posting
// operations: they flow through the journal engine inside the same
// period-locked transaction as the status change.
type Service struct {
	repo    Repository
	journal *journal.Service
	authz   shared.Authorizer
	audit   AuditPort
	locker  *redis.Client
	now     func() time.Time
}

// NewService constructs the period manager.
func NewService(repo Repository, journalSvc *journal.Service, authz shared.Authorizer, audit AuditPort) *Service {
	return &Service{repo: repo, journal: journalSvc, authz: authz, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocker wires a redis client used to fence close/reopen across processes.
func (s *Service) WithLocker(client *redis.Client) {
	s.locker = client
}

// Create inserts a new period after validating overlap. Two periods of one
// company can never cover the same date; the DB constraint backstops this
// check under concurrent creates.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (Period, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermPeriodManage); err != nil {
		return Period{}, err
	}
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	conflict, err := s.repo.RangeConflict(ctx, in.CompanyID, in.StartDate, in.EndDate)
	if err != nil {
		return Period{}, err
	}
	if conflict {
		return Period{}, ErrPeriodOverlap
	}
	period, err := s.repo.Insert(ctx, in)
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, period.CompanyID, actorID, "period.create", period.ID, map[string]any{"name": period.Name})
	return period, nil
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Period, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns the company's periods ordered by start date.
func (s *Service) List(ctx context.Context, companyID int64) ([]Period, error) {
	return s.repo.List(ctx, companyID)
}

// FindPeriodForDate returns the period whose inclusive range contains date.
// This is the sole authority on whether a date is postable.
func (s *Service) FindPeriodForDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	return s.repo.FindForDate(ctx, companyID, date)
}

// Close zeroes the period's revenue and expense activity into retained
// earnings via a CLOSING entry and marks the period CLOSED. The closing entry
// and the status flip commit together.
func (s *Service) Close(ctx context.Context, actorID, companyID, periodID int64) (Period, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermPeriodClose); err != nil {
		return Period{}, err
	}
	unlock, err := s.fence(ctx, companyID, periodID)
	if err != nil {
		return Period{}, err
	}
	defer unlock()

	var closingEntryID *int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LoadPeriodForUpdate(ctx, companyID, periodID)
		if err != nil {
			return err
		}
		if err := shared.ValidatePeriodTransition(period.Status, shared.PeriodStatusClosed); err != nil {
			return err
		}
		activity, err := tx.RevenueExpenseActivity(ctx, companyID, period.StartDate, period.EndDate)
		if err != nil {
			return err
		}
		lines := buildClosingLines(activity)
		if len(lines) > 0 {
			retainedID, err := tx.RetainedEarningsAccount(ctx, companyID)
			if err != nil {
				return err
			}
			lines = appendNetIncomeLine(lines, activity, retainedID)
			entry, err := s.journal.PostClosingInTx(ctx, tx.Journal(), journal.DraftInput{
				CompanyID: companyID,
				Date:      period.EndDate,
				Memo:      fmt.Sprintf("Closing entry for %s", period.Name),
				CreatedBy: actorID,
				Source:    &journal.SourceRef{Kind: journal.SourcePeriodClose, ID: fmt.Sprintf("%d", period.ID)},
				Lines:     lines,
			})
			if err != nil {
				if errors.Is(err, journal.ErrSourceAlreadyLinked) {
					return shared.ErrConcurrencyConflict
				}
				return err
			}
			closingEntryID = &entry.ID
		}
		return tx.MarkClosed(ctx, periodID, actorID, s.now(), closingEntryID)
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, companyID, actorID, "period.close", periodID, map[string]any{"closing_je_id": closingEntryID})
	return s.repo.Get(ctx, companyID, periodID)
}

// Reopen voids the closing entry and marks the period OPEN again. Balances
// after reopen equal balances before close.
func (s *Service) Reopen(ctx context.Context, actorID, companyID, periodID int64) (Period, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermPeriodClose); err != nil {
		return Period{}, err
	}
	unlock, err := s.fence(ctx, companyID, periodID)
	if err != nil {
		return Period{}, err
	}
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LoadPeriodForUpdate(ctx, companyID, periodID)
		if err != nil {
			return err
		}
		if err := shared.ValidatePeriodTransition(period.Status, shared.PeriodStatusOpen); err != nil {
			return err
		}
		if period.ClosingEntryID != nil {
			if _, err := s.journal.VoidClosingInTx(ctx, tx.Journal(), companyID, *period.ClosingEntryID, actorID); err != nil {
				return err
			}
		}
		return tx.MarkOpen(ctx, periodID)
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, companyID, actorID, "period.reopen", periodID, nil)
	return s.repo.Get(ctx, companyID, periodID)
}

// Lock makes a closed period immutable. There is no unlock: a locked period is
// a hard audit boundary.
func (s *Service) Lock(ctx context.Context, actorID, companyID, periodID int64) (Period, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermPeriodClose); err != nil {
		return Period{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LoadPeriodForUpdate(ctx, companyID, periodID)
		if err != nil {
			return err
		}
		if err := shared.ValidatePeriodTransition(period.Status, shared.PeriodStatusLocked); err != nil {
			return err
		}
		return tx.MarkLocked(ctx, periodID)
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, companyID, actorID, "period.lock", periodID, nil)
	return s.repo.Get(ctx, companyID, periodID)
}

// Delete removes a period that is still open and has no posted activity.
func (s *Service) Delete(ctx context.Context, actorID, companyID, periodID int64) error {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermPeriodManage); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LoadPeriodForUpdate(ctx, companyID, periodID)
		if err != nil {
			return err
		}
		if period.Status != shared.PeriodStatusOpen {
			return ErrPeriodNotEmpty
		}
		active, err := tx.HasPostedActivity(ctx, companyID, period)
		if err != nil {
			return err
		}
		if active {
			return ErrPeriodNotEmpty
		}
		return tx.Delete(ctx, periodID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, companyID, actorID, "period.delete", periodID, nil)
	return nil
}

// fence takes a short redis lock around close/reopen so two processes cannot
// race the same period even before the row lock is reached.
func (s *Service) fence(ctx context.Context, companyID, periodID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := shared.PeriodLockKey(companyID, periodID)
	ok, err := s.locker.SetNX(ctx, key, 1, 30*time.Second).Result()
	if err != nil {
		// Redis being down must not block the books; the row lock still guards.
		return func() {}, nil
	}
	if !ok {
		return nil, shared.ErrConcurrencyConflict
	}
	return func() { _ = s.locker.Del(context.WithoutCancel(ctx), key) }, nil
}

// buildClosingLines produces one zeroing line per revenue/expense account with
// non-zero in-period activity.
func buildClosingLines(activity []AccountActivity) []journal.LineInput {
	var lines []journal.LineInput
	for _, a := range activity {
		net := accountNet(a)
		switch {
		case net.IsZero():
			continue
		case net.IsPositive():
			// Zero the account from its normal side.
			if a.Type == accounts.AccountTypeRevenue {
				lines = append(lines, journal.LineInput{AccountID: a.AccountID, Debit: net})
			} else {
				lines = append(lines, journal.LineInput{AccountID: a.AccountID, Credit: net})
			}
		default:
			if a.Type == accounts.AccountTypeRevenue {
				lines = append(lines, journal.LineInput{AccountID: a.AccountID, Credit: net.Neg()})
			} else {
				lines = append(lines, journal.LineInput{AccountID: a.AccountID, Debit: net.Neg()})
			}
		}
	}
	return lines
}

// appendNetIncomeLine balances the closing entry into retained earnings.
func appendNetIncomeLine(lines []journal.LineInput, activity []AccountActivity, retainedID int64) []journal.LineInput {
	netIncome := decimal.Zero
	for _, a := range activity {
		if a.Type == accounts.AccountTypeRevenue {
			netIncome = netIncome.Add(accountNet(a))
		} else {
			netIncome = netIncome.Sub(accountNet(a))
		}
	}
	switch {
	case netIncome.IsPositive():
		lines = append(lines, journal.LineInput{AccountID: retainedID, Credit: netIncome})
	case netIncome.IsNegative():
		lines = append(lines, journal.LineInput{AccountID: retainedID, Debit: netIncome.Neg()})
	}
	return lines
}

// accountNet is the account's activity in its own normal-side terms.
func accountNet(a AccountActivity) decimal.Decimal {
	if a.Type == accounts.AccountTypeRevenue {
		return a.Credit.Sub(a.Debit)
	}
	return a.Debit.Sub(a.Credit)
}

func (s *Service) record(ctx context.Context, companyID, actorID int64, action string, periodID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "accounting_period",
		EntityID:  fmt.Sprintf("%d", periodID),
		Meta:      meta,
		At:        s.now(),
	})
}
