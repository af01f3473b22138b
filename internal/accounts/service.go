package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quillbooks/quill/internal/shared"
)

var (
	// ErrCodeTaken indicates the account code already exists for the company.
	ErrCodeTaken = errors.New("accounts: code already in use")
	// ErrParentCycle indicates the requested parent would create a loop.
	ErrParentCycle = errors.New("accounts: parent assignment would create a cycle")
	// ErrHasActivity indicates the account has ledger entries and cannot be removed.
	ErrHasActivity = errors.New("accounts: account has ledger activity")
)

// CreateInput groups fields required to create an account.
type CreateInput struct {
	CompanyID  int64
	Code       string
	Name       string
	Type       AccountType
	Subtype    string
	ParentID   *int64
	NormalSide NormalSide
}

// UpdateInput groups mutable account fields.
type UpdateInput struct {
	CompanyID int64
	ID        int64
	Name      string
	Subtype   string
	ParentID  *int64
}

// Service manages the chart of accounts.
type Service struct {
	repo  Repository
	authz shared.Authorizer
	now   func() time.Time
}

// NewService constructs the account registry service.
func NewService(repo Repository, authz shared.Authorizer) *Service {
	return &Service{repo: repo, authz: authz, now: time.Now}
}

// Create validates and inserts a new account.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (Account, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermAccountsEdit); err != nil {
		return Account{}, err
	}
	if in.CompanyID == 0 {
		return Account{}, shared.ErrCompanyRequired
	}
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Name) == "" {
		return Account{}, errors.New("accounts: code and name required")
	}
	if !ValidType(in.Type) {
		return Account{}, fmt.Errorf("accounts: unknown type %q", in.Type)
	}
	side := in.NormalSide
	if side == "" {
		side = DefaultNormalSide(in.Type)
	}
	if side != NormalSideDebit && side != NormalSideCredit {
		return Account{}, fmt.Errorf("accounts: unknown normal side %q", side)
	}
	if in.ParentID != nil {
		parent, err := s.repo.Get(ctx, in.CompanyID, *in.ParentID)
		if err != nil {
			return Account{}, err
		}
		if parent.Type != in.Type {
			return Account{}, fmt.Errorf("accounts: parent %s is of type %s, child must match", parent.Code, parent.Type)
		}
	}
	return s.repo.Insert(ctx, in, side)
}

// Update applies name/subtype/parent changes. Type and normal side are fixed at
// creation; corrections go through a new account.
func (s *Service) Update(ctx context.Context, actorID int64, in UpdateInput) (Account, error) {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermAccountsEdit); err != nil {
		return Account{}, err
	}
	acc, err := s.repo.Get(ctx, in.CompanyID, in.ID)
	if err != nil {
		return Account{}, err
	}
	if in.ParentID != nil {
		if err := s.ensureNoCycle(ctx, in.CompanyID, in.ID, *in.ParentID); err != nil {
			return Account{}, err
		}
	}
	acc.Name = in.Name
	acc.Subtype = in.Subtype
	acc.ParentID = in.ParentID
	if err := s.repo.Update(ctx, acc); err != nil {
		return Account{}, err
	}
	return s.repo.Get(ctx, in.CompanyID, in.ID)
}

// ensureNoCycle walks up from the proposed parent; hitting the account itself
// means the assignment would close a loop.
func (s *Service) ensureNoCycle(ctx context.Context, companyID, accountID, parentID int64) error {
	cursor := parentID
	for cursor != 0 {
		if cursor == accountID {
			return ErrParentCycle
		}
		parent, err := s.repo.Get(ctx, companyID, cursor)
		if err != nil {
			return err
		}
		if parent.ParentID == nil {
			return nil
		}
		cursor = *parent.ParentID
	}
	return nil
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Account, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns the company's chart of accounts ordered by code.
func (s *Service) List(ctx context.Context, companyID int64) ([]Account, error) {
	return s.repo.List(ctx, companyID)
}

// Deactivate retires an account. Accounts with ledger activity are never hard
// deleted; deactivation hides them from new postings only.
func (s *Service) Deactivate(ctx context.Context, actorID, companyID, id int64) error {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermAccountsEdit); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, companyID, id); err != nil {
		return err
	}
	return s.repo.SetActive(ctx, companyID, id, false)
}

// Remove hard-deletes an account that has never been posted to. Accounts with
// ledger activity return ErrHasActivity; retire those with Deactivate instead.
func (s *Service) Remove(ctx context.Context, actorID, companyID, id int64) error {
	if err := shared.EnsureAllowed(ctx, s.authz, actorID, shared.PermAccountsEdit); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, companyID, id); err != nil {
		return err
	}
	active, err := s.repo.HasLedgerActivity(ctx, id)
	if err != nil {
		return err
	}
	if active {
		return ErrHasActivity
	}
	return s.repo.Delete(ctx, companyID, id)
}

// RefreshCachedBalance recomputes the advisory cached balance from the ledger.
// Failures degrade gracefully; the ledger remains the source of truth.
func (s *Service) RefreshCachedBalance(ctx context.Context, companyID, id int64) error {
	if _, err := s.repo.Get(ctx, companyID, id); err != nil {
		return err
	}
	bal, err := s.repo.LatestRunningBalance(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.SetCachedBalance(ctx, id, bal)
}
