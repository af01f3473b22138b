package shared

import "context"

// Bookkeeping permissions checked before every mutating operation.
const (
	PermJournalCreate = "journal.create"
	PermJournalPost   = "journal.post"
	PermJournalVoid   = "journal.void"

	PermPeriodManage = "period.manage"
	PermPeriodClose  = "period.close"

	PermAccountsEdit = "accounts.edit"
	PermAccountsView = "accounts.view"

	PermLedgerView  = "ledger.view"
	PermReportsView = "reports.view"
)

// Authorizer is the external authorization gate. Permission resolution lives
// outside this service; the core only consumes the allow/deny answer.
type Authorizer interface {
	Allow(ctx context.Context, userID int64, permission string) (bool, error)
}

// EnsureAllowed converts a gate denial into ErrForbidden. Denials are terminal;
// the core never retries or escalates.
func EnsureAllowed(ctx context.Context, gate Authorizer, userID int64, permission string) error {
	if gate == nil {
		return nil
	}
	ok, err := gate.Allow(ctx, userID, permission)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
