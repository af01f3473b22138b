package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quillbooks/quill/internal/shared"
)

// Service renders reports, collapsing concurrent identical requests and
// serving cached copies when the ledger has not moved.
type Service struct {
	repo   Repository
	cache  *Cache
	authz  shared.Authorizer
	logger *slog.Logger
	sf     singleflight.Group
}

// NewService constructs the report service. cache may be nil.
func NewService(repo Repository, cache *Cache, authz shared.Authorizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, authz: authz, logger: logger}
}

// TrialBalance returns the company's trial balance as of the given date.
// An integrity violation is logged loudly and returned as ErrLedgerIntegrity;
// a broken ledger never produces a report.
func (s *Service) TrialBalance(ctx context.Context, actorID, companyID int64, asOf time.Time) (TrialBalance, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermReportsView); err != nil {
		return TrialBalance{}, err
	}
	if s.cache != nil {
		if tb, ok, err := s.cache.Get(ctx, companyID, asOf); err == nil && ok {
			return tb, nil
		}
	}
	key := fmt.Sprintf("tb:%d:%s", companyID, asOf.Format("2006-01-02"))
	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.build(ctx, companyID, asOf)
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return v.(TrialBalance), nil
}

func (s *Service) build(ctx context.Context, companyID int64, asOf time.Time) (TrialBalance, error) {
	balances, err := s.repo.AccountBalances(ctx, companyID, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	tb, err := BuildTrialBalance(asOf, balances)
	if err != nil {
		s.logger.Error("trial balance integrity check failed",
			"company_id", companyID, "as_of", asOf.Format("2006-01-02"), "err", err)
		return TrialBalance{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, companyID, asOf, tb); err != nil {
			s.logger.Warn("trial balance cache write failed", "company_id", companyID, "err", err)
		}
	}
	return tb, nil
}
