package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillbooks/quill/internal/reports"
)

// HandleIntegrityCheck verifies that total debits equal total credits for each
// company's ledger. A violation is logged at error level and fails the task so
// it stays visible in the queue.
func HandleIntegrityCheck(logger *slog.Logger, pool *pgxpool.Pool, repo reports.Repository) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload IntegrityCheckPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		companies := []int64{payload.CompanyID}
		if payload.CompanyID == 0 {
			ids, err := allCompanies(ctx, pool)
			if err != nil {
				return err
			}
			companies = ids
		}
		now := time.Now().UTC()
		var failed error
		for _, companyID := range companies {
			balances, err := repo.AccountBalances(ctx, companyID, now)
			if err != nil {
				return err
			}
			if _, err := reports.BuildTrialBalance(now, balances); err != nil {
				logger.Error("ledger integrity check failed",
					slog.Int64("company_id", companyID),
					slog.Any("error", err))
				failed = errors.Join(failed, err)
				continue
			}
			logger.Info("ledger integrity check passed", slog.Int64("company_id", companyID))
		}
		return failed
	}
}

func allCompanies(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	rows, err := pool.Query(ctx, `SELECT DISTINCT company_id FROM accounts ORDER BY company_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
