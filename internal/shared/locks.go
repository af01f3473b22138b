package shared

import "fmt"

// PeriodLockKey builds redis keys for period close/reopen critical sections.
func PeriodLockKey(companyID, periodID int64) string {
	return fmt.Sprintf("books:%d:period:%d:lock", companyID, periodID)
}

// TrialBalanceCacheKey builds redis keys for cached trial balances.
func TrialBalanceCacheKey(companyID int64, asOf string) string {
	return fmt.Sprintf("books:%d:tb:%s", companyID, asOf)
}
