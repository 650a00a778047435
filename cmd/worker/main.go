package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-wms/meridian-wms/internal/app"
	"github.com/meridian-wms/meridian-wms/internal/debt"
	jobmetrics "github.com/meridian-wms/meridian-wms/internal/jobs"
	"github.com/meridian-wms/meridian-wms/internal/lots"
	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	"github.com/meridian-wms/meridian-wms/jobs"
)

// lotChecker narrows the lot repository to what stock alerts need.
type lotChecker struct {
	repo *lots.Repository
}

func (c lotChecker) Get(ctx context.Context, id int64) (float64, string, error) {
	lot, err := c.repo.Get(ctx, id)
	if err != nil {
		return 0, "", err
	}
	return lot.RemainQuantity, lot.BatchCode, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	lotsRepo := lots.NewRepository(dbpool)
	masterRepo := masterdata.NewRepository(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	debtRepo := debt.NewRepository(dbpool)
	debtService := debt.NewService(debtRepo, masterRepo, nil, nil, logger)

	metrics := jobmetrics.NewMetrics(nil)

	debtResyncTask := asynq.NewTask(jobs.TaskTypeDebtResync, nil)
	sweepTask := asynq.NewTask(jobs.TaskTypeIdempotencySweep, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Metrics:   metrics,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeStockAlert, Handler: jobs.HandleStockAlertTask(lotChecker{repo: lotsRepo}, cfg.LowStockThreshold, metrics, logger)},
			{Type: jobs.TaskTypeDebtResync, Handler: jobs.HandleDebtResyncTask(debtService, logger)},
			{Type: jobs.TaskTypeIdempotencySweep, Handler: jobs.HandleIdempotencySweepTask(idempotencyStore, cfg.IdempotencyRetention, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 2 * * *", Task: debtResyncTask},
			{Spec: "0 3 * * *", Task: sweepTask},
		},
	})
	if err != nil {
		logger.Error("configure worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
