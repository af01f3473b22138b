package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRepair recomputes running balances for one account.
	TaskLedgerRepair = "ledger:repair"
	// TaskIntegrityCheck verifies the global debit/credit invariant per company.
	TaskIntegrityCheck = "ledger:integrity"
	// TaskBalanceRefresh rewrites cached account balance columns from the ledger.
	TaskBalanceRefresh = "accounts:balance_refresh"
)

// LedgerRepairPayload identifies the account whose running balances went stale.
type LedgerRepairPayload struct {
	CompanyID int64 `json:"company_id"`
	AccountID int64 `json:"account_id"`
}

// NewLedgerRepairTask constructs an Asynq task.
func NewLedgerRepairTask(payload LedgerRepairPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRepair, data), nil
}

// IntegrityCheckPayload identifies the company to verify. CompanyID zero means
// all companies.
type IntegrityCheckPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewIntegrityCheckTask constructs an Asynq task.
func NewIntegrityCheckTask(payload IntegrityCheckPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityCheck, data), nil
}

// BalanceRefreshPayload identifies the company whose cached balances to rewrite.
type BalanceRefreshPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewBalanceRefreshTask constructs an Asynq task.
func NewBalanceRefreshTask(payload BalanceRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceRefresh, data), nil
}

// Client submits jobs to the queue. It satisfies the journal engine's repair
// scheduler port.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueLedgerRepair schedules a running-balance repair for the account.
func (c *Client) EnqueueLedgerRepair(ctx context.Context, companyID, accountID int64) error {
	task, err := NewLedgerRepairTask(LedgerRepairPayload{CompanyID: companyID, AccountID: accountID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
	return err
}

// EnqueueIntegrityCheck schedules an integrity sweep for the company.
func (c *Client) EnqueueIntegrityCheck(ctx context.Context, companyID int64) error {
	task, err := NewIntegrityCheckTask(IntegrityCheckPayload{CompanyID: companyID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases the underlying asynq client.
func (c *Client) Close() error {
	return c.client.Close()
}
