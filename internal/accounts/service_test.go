package accounts

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quill/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	accounts map[int64]*Account
	byCode   map[string]int64
	nextID   int64

	ledgerActivity map[int64]bool
	latestBalance  map[int64]decimal.Decimal
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts:       make(map[int64]*Account),
		byCode:         make(map[string]int64),
		ledgerActivity: make(map[int64]bool),
		latestBalance:  make(map[int64]decimal.Decimal),
		nextID:         1,
	}
}

func (m *mockRepository) Insert(ctx context.Context, in CreateInput, side NormalSide) (Account, error) {
	if _, taken := m.byCode[in.Code]; taken {
		return Account{}, ErrCodeTaken
	}
	a := &Account{
		ID:         m.nextID,
		CompanyID:  in.CompanyID,
		Code:       in.Code,
		Name:       in.Name,
		Type:       in.Type,
		Subtype:    in.Subtype,
		ParentID:   in.ParentID,
		NormalSide: side,
		IsActive:   true,
	}
	m.nextID++
	m.accounts[a.ID] = a
	m.byCode[a.Code] = a.ID
	return *a, nil
}

func (m *mockRepository) Update(ctx context.Context, acc Account) error {
	stored := m.accounts[acc.ID]
	stored.Name = acc.Name
	stored.Subtype = acc.Subtype
	stored.ParentID = acc.ParentID
	return nil
}

func (m *mockRepository) Get(ctx context.Context, companyID, id int64) (Account, error) {
	a, ok := m.accounts[id]
	if !ok || a.CompanyID != companyID {
		return Account{}, shared.ErrNotFound
	}
	return *a, nil
}

func (m *mockRepository) List(ctx context.Context, companyID int64) ([]Account, error) {
	var out []Account
	for _, a := range m.accounts {
		if a.CompanyID == companyID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockRepository) HasLedgerActivity(ctx context.Context, accountID int64) (bool, error) {
	return m.ledgerActivity[accountID], nil
}

func (m *mockRepository) LatestRunningBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	return m.latestBalance[accountID], nil
}

func (m *mockRepository) SetCachedBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	m.accounts[accountID].CachedBalance = balance
	return nil
}

func (m *mockRepository) SetActive(ctx context.Context, companyID, id int64, active bool) error {
	m.accounts[id].IsActive = active
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, companyID, id int64) error {
	a, ok := m.accounts[id]
	if !ok || a.CompanyID != companyID {
		return shared.ErrNotFound
	}
	delete(m.byCode, a.Code)
	delete(m.accounts, id)
	return nil
}

// ============================================================================
// TESTS
// ============================================================================

func create(t *testing.T, svc *Service, in CreateInput) Account {
	t.Helper()
	acc, err := svc.Create(context.Background(), 7, in)
	require.NoError(t, err)
	return acc
}

func TestCreateDefaultsNormalSide(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	cash := create(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Cash", Type: AccountTypeAsset})
	assert.Equal(t, NormalSideDebit, cash.NormalSide)

	sales := create(t, svc, CreateInput{CompanyID: 1, Code: "4000", Name: "Sales", Type: AccountTypeRevenue})
	assert.Equal(t, NormalSideCredit, sales.NormalSide)
}

func TestCreateRejectsUnknownType(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), 7, CreateInput{CompanyID: 1, Code: "9999", Name: "Mystery", Type: "CONTRA"})
	assert.Error(t, err)
}

func TestCreateDuplicateCode(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	create(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Cash", Type: AccountTypeAsset})

	_, err := svc.Create(context.Background(), 7, CreateInput{CompanyID: 1, Code: "1000", Name: "Cash Again", Type: AccountTypeAsset})
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestCreateParentTypeMustMatch(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	cash := create(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Cash", Type: AccountTypeAsset})

	_, err := svc.Create(context.Background(), 7, CreateInput{
		CompanyID: 1, Code: "4000", Name: "Sales", Type: AccountTypeRevenue, ParentID: &cash.ID,
	})
	assert.Error(t, err)
}

func TestUpdateRejectsParentCycle(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	parent := create(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Current Assets", Type: AccountTypeAsset})
	child := create(t, svc, CreateInput{CompanyID: 1, Code: "1100", Name: "Cash", Type: AccountTypeAsset, ParentID: &parent.ID})

	// Making the parent a child of its own child closes a loop.
	_, err := svc.Update(context.Background(), 7, UpdateInput{
		CompanyID: 1, ID: parent.ID, Name: parent.Name, ParentID: &child.ID,
	})
	assert.ErrorIs(t, err, ErrParentCycle)
}

func TestUpdateSelfParentRejected(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	acc := create(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Cash", Type: AccountTypeAsset})

	_, err := svc.Update(context.Background(), 7, UpdateInput{
		CompanyID: 1, ID: acc.ID, Name: acc.Name, ParentID: &acc.ID,
	})
	assert.ErrorIs(t, err, ErrParentCycle)
}

func TestDeactivateKeepsAccount(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	acc := create(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Cash", Type: AccountTypeAsset})
	repo.ledgerActivity[acc.ID] = true

	require.NoError(t, svc.Deactivate(context.Background(), 7, 1, acc.ID))

	stored, err := svc.Get(context.Background(), 1, acc.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestRemoveUnusedAccount(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	acc := create(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Cash", Type: AccountTypeAsset})

	require.NoError(t, svc.Remove(context.Background(), 7, 1, acc.ID))

	_, err := svc.Get(context.Background(), 1, acc.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemoveRejectsLedgerActivity(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	acc := create(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Cash", Type: AccountTypeAsset})
	repo.ledgerActivity[acc.ID] = true

	err := svc.Remove(context.Background(), 7, 1, acc.ID)
	assert.ErrorIs(t, err, ErrHasActivity)

	_, err = svc.Get(context.Background(), 1, acc.ID)
	require.NoError(t, err)
}

func TestRefreshCachedBalance(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	acc := create(t, svc, CreateInput{CompanyID: 1, Code: "1000", Name: "Cash", Type: AccountTypeAsset})
	repo.latestBalance[acc.ID] = decimal.RequireFromString("1500")

	require.NoError(t, svc.RefreshCachedBalance(context.Background(), 1, acc.ID))

	stored, err := svc.Get(context.Background(), 1, acc.ID)
	require.NoError(t, err)
	assert.True(t, stored.CachedBalance.Equal(decimal.RequireFromString("1500")))
}
