package periods

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quill/internal/accounts"
	"github.com/quillbooks/quill/internal/journal"
	"github.com/quillbooks/quill/internal/ledger"
	"github.com/quillbooks/quill/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	periods      map[int64]*Period
	nextPeriodID int64

	activity        []AccountActivity
	retainedID      int64
	postedActivity  bool
	journalEntries  map[int64]*journal.JournalEntry
	journalLines    map[int64][]journal.JournalLine
	nextEntryID     int64
	nextLineID      int64
	accounts        map[int64]bool
	closingProjects int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		periods:        make(map[int64]*Period),
		journalEntries: make(map[int64]*journal.JournalEntry),
		journalLines:   make(map[int64][]journal.JournalLine),
		accounts:       make(map[int64]bool),
		nextPeriodID:   1,
		nextEntryID:    1,
		nextLineID:     1,
		retainedID:     30,
	}
}

func (m *mockRepository) addPeriod(status string, start, end time.Time) *Period {
	p := &Period{
		ID:         m.nextPeriodID,
		CompanyID:  1,
		Name:       "January 2026",
		Type:       PeriodTypeMonthly,
		FiscalYear: 2026,
		StartDate:  start,
		EndDate:    end,
		Status:     status,
	}
	m.nextPeriodID++
	m.periods[p.ID] = p
	return p
}

func (m *mockRepository) Get(ctx context.Context, companyID, id int64) (Period, error) {
	p, ok := m.periods[id]
	if !ok || p.CompanyID != companyID {
		return Period{}, shared.ErrNotFound
	}
	return *p, nil
}

func (m *mockRepository) List(ctx context.Context, companyID int64) ([]Period, error) {
	var out []Period
	for _, p := range m.periods {
		if p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepository) FindForDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	for _, p := range m.periods {
		if p.CompanyID == companyID && p.Contains(date) {
			return *p, nil
		}
	}
	return Period{}, shared.ErrNotFound
}

func (m *mockRepository) RangeConflict(ctx context.Context, companyID int64, start, end time.Time) (bool, error) {
	for _, p := range m.periods {
		if p.CompanyID == companyID && !p.StartDate.After(end) && !p.EndDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) Insert(ctx context.Context, in CreateInput) (Period, error) {
	p := &Period{
		ID:         m.nextPeriodID,
		CompanyID:  in.CompanyID,
		Name:       in.Name,
		Type:       in.Type,
		FiscalYear: in.FiscalYear,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		Status:     shared.PeriodStatusOpen,
	}
	m.nextPeriodID++
	m.periods[p.ID] = p
	return *p, nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) Journal() journal.TxRepository {
	return &mockJournalTx{mock: t.mock}
}

func (t *mockTxRepo) LoadPeriodForUpdate(ctx context.Context, companyID, id int64) (Period, error) {
	return t.mock.Get(ctx, companyID, id)
}

func (t *mockTxRepo) MarkClosed(ctx context.Context, id, closedBy int64, closedAt time.Time, closingEntryID *int64) error {
	p := t.mock.periods[id]
	p.Status = shared.PeriodStatusClosed
	p.ClosedBy = &closedBy
	p.ClosedAt = &closedAt
	p.ClosingEntryID = closingEntryID
	return nil
}

func (t *mockTxRepo) MarkOpen(ctx context.Context, id int64) error {
	p := t.mock.periods[id]
	p.Status = shared.PeriodStatusOpen
	p.ClosedBy = nil
	p.ClosedAt = nil
	p.ClosingEntryID = nil
	return nil
}

func (t *mockTxRepo) MarkLocked(ctx context.Context, id int64) error {
	t.mock.periods[id].Status = shared.PeriodStatusLocked
	return nil
}

func (t *mockTxRepo) HasPostedActivity(ctx context.Context, companyID int64, p Period) (bool, error) {
	return t.mock.postedActivity, nil
}

func (t *mockTxRepo) RevenueExpenseActivity(ctx context.Context, companyID int64, start, end time.Time) ([]AccountActivity, error) {
	return t.mock.activity, nil
}

func (t *mockTxRepo) RetainedEarningsAccount(ctx context.Context, companyID int64) (int64, error) {
	if t.mock.retainedID == 0 {
		return 0, ErrNoRetainedEarnings
	}
	return t.mock.retainedID, nil
}

func (t *mockTxRepo) Delete(ctx context.Context, id int64) error {
	delete(t.mock.periods, id)
	return nil
}

// mockJournalTx backs the posting engine inside the period transaction.
type mockJournalTx struct {
	mock *mockRepository
}

func (t *mockJournalTx) InsertEntry(ctx context.Context, in journal.DraftInput, status journal.EntryStatus, postedAt *time.Time) (journal.JournalEntry, error) {
	e := &journal.JournalEntry{
		ID:        t.mock.nextEntryID,
		CompanyID: in.CompanyID,
		Date:      in.Date,
		Type:      in.Type,
		Status:    status,
		Memo:      in.Memo,
		CreatedBy: in.CreatedBy,
		Source:    in.Source,
		PostedAt:  postedAt,
	}
	t.mock.nextEntryID++
	t.mock.journalEntries[e.ID] = e
	return *e, nil
}

func (t *mockJournalTx) InsertLines(ctx context.Context, entryID int64, lines []journal.LineInput) ([]journal.JournalLine, error) {
	var out []journal.JournalLine
	for _, in := range lines {
		out = append(out, journal.JournalLine{
			ID:        t.mock.nextLineID,
			EntryID:   entryID,
			AccountID: in.AccountID,
			Debit:     in.Debit,
			Credit:    in.Credit,
			Memo:      in.Memo,
		})
		t.mock.nextLineID++
	}
	t.mock.journalLines[entryID] = out
	return out, nil
}

func (t *mockJournalTx) ReplaceLines(ctx context.Context, entryID int64, lines []journal.LineInput) ([]journal.JournalLine, error) {
	delete(t.mock.journalLines, entryID)
	return t.InsertLines(ctx, entryID, lines)
}

func (t *mockJournalTx) GetEntryWithLinesForUpdate(ctx context.Context, companyID, entryID int64) (journal.JournalEntry, error) {
	e, ok := t.mock.journalEntries[entryID]
	if !ok || e.CompanyID != companyID {
		return journal.JournalEntry{}, shared.ErrNotFound
	}
	out := *e
	out.Lines = t.mock.journalLines[entryID]
	return out, nil
}

func (t *mockJournalTx) UpdateDraftHeader(ctx context.Context, entryID int64, date time.Time, memo string) error {
	return nil
}

func (t *mockJournalTx) UpdateStatus(ctx context.Context, entryID int64, status journal.EntryStatus, postedAt *time.Time) error {
	t.mock.journalEntries[entryID].Status = status
	return nil
}

func (t *mockJournalTx) SetReversal(ctx context.Context, originalID, reversalID int64) error {
	t.mock.journalEntries[originalID].ReversedByID = &reversalID
	t.mock.journalEntries[reversalID].ReversesID = &originalID
	return nil
}

func (t *mockJournalTx) DeleteEntry(ctx context.Context, entryID int64) error {
	delete(t.mock.journalEntries, entryID)
	return nil
}

func (t *mockJournalTx) AccountsUsable(ctx context.Context, companyID int64, accountIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, id := range accountIDs {
		if active, ok := t.mock.accounts[id]; ok {
			out[id] = active
		}
	}
	return out, nil
}

func (t *mockJournalTx) GetPeriodForDateForUpdate(ctx context.Context, companyID int64, date time.Time) (journal.PeriodRef, error) {
	for _, p := range t.mock.periods {
		if p.CompanyID == companyID && p.Contains(date) {
			return journal.PeriodRef{ID: p.ID, Status: p.Status, StartDate: p.StartDate, EndDate: p.EndDate}, nil
		}
	}
	return journal.PeriodRef{}, journal.ErrNoPeriodForDate
}

func (t *mockJournalTx) Project(ctx context.Context, p ledger.Posting) ([]int64, error) {
	t.mock.closingProjects++
	return nil, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(repo *mockRepository) *Service {
	journalSvc := journal.NewService(nil, nil, nil)
	svc := NewService(repo, journalSvc, nil, nil)
	repo.accounts[40] = true // revenue
	repo.accounts[50] = true // expense
	repo.accounts[30] = true // retained earnings
	return svc
}

// ============================================================================
// TESTS
// ============================================================================

func TestCreateRejectsOverlap(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))

	_, err := svc.Create(context.Background(), 7, CreateInput{
		CompanyID:  1,
		Name:       "Overlapping",
		Type:       PeriodTypeMonthly,
		FiscalYear: 2026,
		StartDate:  date(2026, 1, 15),
		EndDate:    date(2026, 2, 15),
	})
	assert.ErrorIs(t, err, ErrPeriodOverlap)
}

func TestCreateRejectsInvertedRange(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), 7, CreateInput{
		CompanyID:  1,
		Name:       "Backwards",
		Type:       PeriodTypeMonthly,
		FiscalYear: 2026,
		StartDate:  date(2026, 2, 1),
		EndDate:    date(2026, 1, 1),
	})
	assert.Error(t, err)
}

func TestCloseZeroesActivityIntoRetainedEarnings(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))
	repo.activity = []AccountActivity{
		{AccountID: 40, Type: accounts.AccountTypeRevenue, Debit: decimal.Zero, Credit: amount("500")},
		{AccountID: 50, Type: accounts.AccountTypeExpense, Debit: amount("300"), Credit: decimal.Zero},
	}

	closed, err := svc.Close(context.Background(), 7, 1, period.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.PeriodStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosingEntryID)

	entry := repo.journalEntries[*closed.ClosingEntryID]
	require.NotNil(t, entry)
	assert.Equal(t, journal.EntryTypeClosing, entry.Type)
	assert.Equal(t, journal.EntryStatusPosted, entry.Status)
	assert.True(t, entry.Date.Equal(period.EndDate))
	require.NotNil(t, entry.Source)
	assert.Equal(t, journal.SourcePeriodClose, entry.Source.Kind)

	lines := repo.journalLines[entry.ID]
	require.Len(t, lines, 3)
	// Revenue debited to zero, expense credited to zero, net income into equity.
	assert.Equal(t, int64(40), lines[0].AccountID)
	assert.True(t, lines[0].Debit.Equal(amount("500")))
	assert.Equal(t, int64(50), lines[1].AccountID)
	assert.True(t, lines[1].Credit.Equal(amount("300")))
	assert.Equal(t, int64(30), lines[2].AccountID)
	assert.True(t, lines[2].Credit.Equal(amount("200")))
	assert.Equal(t, 1, repo.closingProjects)
}

func TestCloseNetLossDebitsRetainedEarnings(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))
	repo.activity = []AccountActivity{
		{AccountID: 40, Type: accounts.AccountTypeRevenue, Debit: decimal.Zero, Credit: amount("100")},
		{AccountID: 50, Type: accounts.AccountTypeExpense, Debit: amount("250"), Credit: decimal.Zero},
	}

	closed, err := svc.Close(context.Background(), 7, 1, period.ID)
	require.NoError(t, err)

	lines := repo.journalLines[*closed.ClosingEntryID]
	require.Len(t, lines, 3)
	assert.Equal(t, int64(30), lines[2].AccountID)
	assert.True(t, lines[2].Debit.Equal(amount("150")))
}

func TestCloseEmptyPeriodPostsNoEntry(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))

	closed, err := svc.Close(context.Background(), 7, 1, period.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.PeriodStatusClosed, closed.Status)
	assert.Nil(t, closed.ClosingEntryID)
	assert.Empty(t, repo.journalEntries)
}

func TestCloseAlreadyClosedRejected(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusClosed, date(2026, 1, 1), date(2026, 1, 31))

	_, err := svc.Close(context.Background(), 7, 1, period.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidPeriodTransition)
}

func TestCloseWithoutRetainedEarningsAccount(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))
	repo.activity = []AccountActivity{
		{AccountID: 40, Type: accounts.AccountTypeRevenue, Debit: decimal.Zero, Credit: amount("500")},
	}
	repo.retainedID = 0

	_, err := svc.Close(context.Background(), 7, 1, period.ID)
	assert.ErrorIs(t, err, ErrNoRetainedEarnings)
}

func TestReopenVoidsClosingEntryAtOriginalDate(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))
	repo.activity = []AccountActivity{
		{AccountID: 40, Type: accounts.AccountTypeRevenue, Debit: decimal.Zero, Credit: amount("500")},
		{AccountID: 50, Type: accounts.AccountTypeExpense, Debit: amount("300"), Credit: decimal.Zero},
	}

	closed, err := svc.Close(context.Background(), 7, 1, period.ID)
	require.NoError(t, err)
	closingID := *closed.ClosingEntryID

	reopened, err := svc.Reopen(context.Background(), 7, 1, period.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.PeriodStatusOpen, reopened.Status)
	assert.Nil(t, reopened.ClosingEntryID)
	assert.Nil(t, reopened.ClosedAt)

	closing := repo.journalEntries[closingID]
	assert.Equal(t, journal.EntryStatusVoid, closing.Status)
	require.NotNil(t, closing.ReversedByID)

	reversal := repo.journalEntries[*closing.ReversedByID]
	require.NotNil(t, reversal)
	// Reversal lands on the closing date so the period nets to its pre-close state.
	assert.True(t, reversal.Date.Equal(period.EndDate))

	lines := repo.journalLines[reversal.ID]
	require.Len(t, lines, 3)
	assert.True(t, lines[0].Credit.Equal(amount("500")))
	assert.True(t, lines[1].Debit.Equal(amount("300")))
	assert.True(t, lines[2].Debit.Equal(amount("200")))
}

func TestReopenEmptyClosedPeriod(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))

	_, err := svc.Close(context.Background(), 7, 1, period.ID)
	require.NoError(t, err)

	reopened, err := svc.Reopen(context.Background(), 7, 1, period.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.PeriodStatusOpen, reopened.Status)
}

func TestLockRequiresClosed(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))

	_, err := svc.Lock(context.Background(), 7, 1, period.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidPeriodTransition)

	_, err = svc.Close(context.Background(), 7, 1, period.ID)
	require.NoError(t, err)

	locked, err := svc.Lock(context.Background(), 7, 1, period.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.PeriodStatusLocked, locked.Status)
}

func TestLockedPeriodCannotReopen(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusLocked, date(2026, 1, 1), date(2026, 1, 31))

	_, err := svc.Reopen(context.Background(), 7, 1, period.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidPeriodTransition)
}

func TestDeleteRejectsPostedActivity(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))
	repo.postedActivity = true

	err := svc.Delete(context.Background(), 7, 1, period.ID)
	assert.ErrorIs(t, err, ErrPeriodNotEmpty)
}

func TestDeleteEmptyOpenPeriod(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	period := repo.addPeriod(shared.PeriodStatusOpen, date(2026, 1, 1), date(2026, 1, 31))

	require.NoError(t, svc.Delete(context.Background(), 7, 1, period.ID))
	_, err := svc.Get(context.Background(), 1, period.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// ============================================================================
// AUTHORIZATION TESTS
// ============================================================================

type denyAll struct{}

func (denyAll) Allow(ctx context.Context, userID int64, permission string) (bool, error) {
	return false, nil
}

func TestCloseDenied(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, journal.NewService(nil, nil, nil), denyAll{}, nil)

	_, err := svc.Close(context.Background(), 7, 1, 1)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestCreateDenied(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, journal.NewService(nil, nil, nil), denyAll{}, nil)

	_, err := svc.Create(context.Background(), 7, CreateInput{
		CompanyID:  1,
		Name:       "January",
		Type:       PeriodTypeMonthly,
		FiscalYear: 2026,
		StartDate:  date(2026, 1, 1),
		EndDate:    date(2026, 1, 31),
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}
