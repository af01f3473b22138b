package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/quillbooks/quill/internal/accounts"
)

// HandleBalanceRefresh rewrites cached account balance columns from the ledger
// for one company. The cached column is advisory; the ledger stays the source
// of truth.
func HandleBalanceRefresh(logger *slog.Logger, accountsSvc *accounts.Service) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload BalanceRefreshPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		list, err := accountsSvc.List(ctx, payload.CompanyID)
		if err != nil {
			return err
		}
		for _, account := range list {
			if err := accountsSvc.RefreshCachedBalance(ctx, payload.CompanyID, account.ID); err != nil {
				logger.Warn("balance refresh failed for account",
					slog.Int64("company_id", payload.CompanyID),
					slog.Int64("account_id", account.ID),
					slog.Any("error", err))
			}
		}
		return nil
	}
}
