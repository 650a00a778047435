package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-wms/meridian-wms/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskTypeStockAlert checks lots touched by a completed sale against the
	// low-stock threshold.
	TaskTypeStockAlert = "stock:alert"
	// TaskTypeDebtResync recomputes every customer's denormalised debt total.
	TaskTypeDebtResync = "debt:resync"
	// TaskTypeIdempotencySweep prunes consumed idempotency keys.
	TaskTypeIdempotencySweep = "idempotency:sweep"
)

// StockAlertPayload describes a completed stock issue to inspect.
type StockAlertPayload struct {
	EventID       string  `json:"event_id"`
	TransactionID int64   `json:"transaction_id"`
	Code          string  `json:"code"`
	StoreID       int64   `json:"store_id"`
	LotIDs        []int64 `json:"lot_ids"`
}

// NewStockAlertTask constructs an Asynq task.
func NewStockAlertTask(payload StockAlertPayload) (*asynq.Task, error) {
	if payload.EventID == "" {
		payload.EventID = uuid.NewString()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeStockAlert, data), nil
}

// LotChecker reads the lots a stock alert inspects.
type LotChecker interface {
	Get(ctx context.Context, id int64) (remain float64, batchCode string, err error)
}

// HandleStockAlertTask returns the handler for TaskTypeStockAlert: every lot
// drained below the threshold is logged for replenishment follow-up.
func HandleStockAlertTask(checker LotChecker, threshold float64, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StockAlertPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		low := 0
		for _, lotID := range payload.LotIDs {
			remain, batchCode, err := checker.Get(ctx, lotID)
			if err != nil {
				logger.Warn("stock alert lot lookup failed",
					slog.String("event_id", payload.EventID),
					slog.Int64("lot_id", lotID),
					slog.Any("error", err))
				continue
			}
			if remain <= threshold {
				low++
				logger.Warn("lot below stock threshold",
					slog.String("event_id", payload.EventID),
					slog.String("sale_code", payload.Code),
					slog.String("batch_code", batchCode),
					slog.Float64("remain", remain),
					slog.Float64("threshold", threshold))
			}
		}
		metrics.AddLowStock(strconv.FormatInt(payload.StoreID, 10), low)
		return nil
	}
}

// DebtResyncer recomputes customer debt totals.
type DebtResyncer interface {
	Resync(ctx context.Context) (int, error)
}

// HandleDebtResyncTask returns the handler for TaskTypeDebtResync.
func HandleDebtResyncTask(resyncer DebtResyncer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		n, err := resyncer.Resync(ctx)
		if err != nil {
			return err
		}
		logger.Info("debt totals resynced", slog.Int("customers", n))
		return nil
	}
}

// IdempotencySweeper prunes consumed idempotency keys.
type IdempotencySweeper interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// HandleIdempotencySweepTask returns the handler for TaskTypeIdempotencySweep.
func HandleIdempotencySweepTask(sweeper IdempotencySweeper, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := sweeper.Cleanup(ctx, retention); err != nil {
			return err
		}
		logger.Info("idempotency keys swept", slog.Duration("retention", retention))
		return nil
	}
}
