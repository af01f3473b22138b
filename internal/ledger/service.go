package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/quillbooks/quill/internal/shared"
)

// Service exposes ledger queries and the repair fold.
type Service struct {
	repo   Repository
	authz  shared.Authorizer
	logger *slog.Logger
}

// NewService constructs the ledger service.
func NewService(repo Repository, authz shared.Authorizer, logger *slog.Logger) *Service {
	return &Service{repo: repo, authz: authz, logger: logger}
}

// EntriesByAccount lists an account's ledger lines in total order.
func (s *Service) EntriesByAccount(ctx context.Context, companyID, accountID int64, limit, offset int) ([]Entry, error) {
	return s.repo.EntriesByAccount(ctx, companyID, accountID, limit, offset)
}

// EntriesByDateRange lists ledger lines across accounts within [from, to].
func (s *Service) EntriesByDateRange(ctx context.Context, companyID int64, from, to time.Time) ([]Entry, error) {
	return s.repo.EntriesByDateRange(ctx, companyID, from, to)
}

// EntriesByJournalEntry lists the projection of one journal entry.
func (s *Service) EntriesByJournalEntry(ctx context.Context, companyID, journalEntryID int64) ([]Entry, error) {
	return s.repo.EntriesByJournalEntry(ctx, companyID, journalEntryID)
}

// GeneralLedger returns the per-account ledger view over [from, to].
func (s *Service) GeneralLedger(ctx context.Context, companyID int64, from, to time.Time) (GeneralLedger, error) {
	return s.repo.GeneralLedger(ctx, companyID, from, to)
}

// Repair recomputes one account's running balances from zero.
func (s *Service) Repair(ctx context.Context, companyID, accountID int64) (int, error) {
	corrected, err := s.repo.Repair(ctx, companyID, accountID)
	if err != nil {
		return 0, err
	}
	if corrected > 0 && s.logger != nil {
		s.logger.Warn("ledger balances corrected",
			slog.Int64("company_id", companyID),
			slog.Int64("account_id", accountID),
			slog.Int("corrected", corrected))
	}
	return corrected, nil
}

// RepairCompany runs the repair fold over every account of a company.
func (s *Service) RepairCompany(ctx context.Context, companyID int64) (int, error) {
	ids, err := s.repo.AccountIDs(ctx, companyID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		corrected, err := s.Repair(ctx, companyID, id)
		if err != nil {
			return total, err
		}
		total += corrected
	}
	return total, nil
}
