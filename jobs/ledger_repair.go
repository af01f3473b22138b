package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/quillbooks/quill/internal/ledger"
)

// HandleLedgerRepair recomputes running balances for the flagged account.
// Repair is idempotent; a retry after partial failure converges to the same
// balances.
func HandleLedgerRepair(logger *slog.Logger, ledgerSvc *ledger.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerRepairPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		corrected, err := ledgerSvc.Repair(ctx, payload.CompanyID, payload.AccountID)
		if err != nil {
			logger.Error("ledger repair failed",
				slog.Int64("company_id", payload.CompanyID),
				slog.Int64("account_id", payload.AccountID),
				slog.Any("error", err))
			return err
		}
		if corrected > 0 {
			logger.Info("ledger repair corrected balances",
				slog.Int64("company_id", payload.CompanyID),
				slog.Int64("account_id", payload.AccountID),
				slog.Int("corrected", corrected))
		}
		return nil
	}
}
