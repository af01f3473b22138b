package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/quillbooks/quill/internal/accounts"
	"github.com/quillbooks/quill/internal/app"
	"github.com/quillbooks/quill/internal/journal"
	"github.com/quillbooks/quill/internal/ledger"
	"github.com/quillbooks/quill/internal/periods"
	"github.com/quillbooks/quill/internal/platform/cache"
	"github.com/quillbooks/quill/internal/platform/db"
	"github.com/quillbooks/quill/internal/reports"
	"github.com/quillbooks/quill/internal/shared"
	"github.com/quillbooks/quill/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns, cfg.PGMinConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idemStore := shared.NewIdempotencyStore(dbpool)

	// Permission resolution lives in an external service that is not wired
	// here yet. A nil gate means every permission check passes.
	var authz shared.Authorizer
	logger.Warn("no authorization gate configured, permission checks resolve to allow")

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, authz)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, authz, logger)

	reportsRepo := reports.NewRepository(dbpool)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(reportsRepo, reportCache, authz, logger)

	journalRepo := journal.NewRepository(dbpool)
	journalService := journal.NewService(journalRepo, authz, auditLogger)
	journalService.WithRepairEnqueuer(jobClient)
	journalService.WithReportCache(reportCache)

	periodsRepo := periods.NewRepository(dbpool)
	periodsService := periods.NewService(periodsRepo, journalService, authz, auditLogger)
	periodsService.WithLocker(redisClient)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Pool:            dbpool,
		AccountsHandler: accounts.NewHandler(logger, accountsService),
		JournalHandler:  journal.NewHandler(logger, journalService, idemStore),
		PeriodsHandler:  periods.NewHandler(logger, periodsService),
		LedgerHandler:   ledger.NewHandler(logger, ledgerService),
		ReportsHandler:  reports.NewHandler(logger, reportsService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
