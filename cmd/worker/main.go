package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/quillbooks/quill/internal/accounts"
	"github.com/quillbooks/quill/internal/app"
	"github.com/quillbooks/quill/internal/ledger"
	"github.com/quillbooks/quill/internal/platform/db"
	"github.com/quillbooks/quill/internal/reports"
	"github.com/quillbooks/quill/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns, cfg.PGMinConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Jobs run as the system, not on behalf of a user; no authorization
	// gate applies to background repairs and refreshes.
	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, nil, logger)

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo, nil)

	reportsRepo := reports.NewRepository(pool)

	integrityTask, err := jobs.NewIntegrityCheckTask(jobs.IntegrityCheckPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerRepair, Handler: jobs.HandleLedgerRepair(logger, ledgerService)},
			{Type: jobs.TaskIntegrityCheck, Handler: jobs.HandleIntegrityCheck(logger, pool, reportsRepo)},
			{Type: jobs.TaskBalanceRefresh, Handler: jobs.HandleBalanceRefresh(logger, accountsService)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
