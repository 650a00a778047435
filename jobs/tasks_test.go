package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	lots map[int64]struct {
		remain float64
		batch  string
	}
}

func (c fakeChecker) Get(ctx context.Context, id int64) (float64, string, error) {
	lot, ok := c.lots[id]
	if !ok {
		return 0, "", errors.New("lot not found")
	}
	return lot.remain, lot.batch, nil
}

type fakeResyncer struct {
	calls int
	err   error
}

func (r *fakeResyncer) Resync(ctx context.Context) (int, error) {
	r.calls++
	return 3, r.err
}

type fakeSweeper struct {
	olderThan time.Duration
}

func (s *fakeSweeper) Cleanup(ctx context.Context, olderThan time.Duration) error {
	s.olderThan = olderThan
	return nil
}

func TestNewStockAlertTaskAssignsEventID(t *testing.T) {
	task, err := NewStockAlertTask(StockAlertPayload{TransactionID: 7, Code: "PB000007", StoreID: 1, LotIDs: []int64{4}})
	require.NoError(t, err)
	require.Equal(t, TaskTypeStockAlert, task.Type())

	var payload StockAlertPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.NotEmpty(t, payload.EventID)
	require.Equal(t, []int64{4}, payload.LotIDs)
}

func TestHandleStockAlertTaskSkipsRetryOnBadPayload(t *testing.T) {
	handler := HandleStockAlertTask(fakeChecker{}, 10, nil, slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskTypeStockAlert, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleStockAlertTaskToleratesMissingLots(t *testing.T) {
	checker := fakeChecker{lots: map[int64]struct {
		remain float64
		batch  string
	}{
		4: {remain: 2, batch: "LH000004"},
	}}
	handler := HandleStockAlertTask(checker, 10, nil, slog.Default())

	task, err := NewStockAlertTask(StockAlertPayload{TransactionID: 7, Code: "PB000007", StoreID: 1, LotIDs: []int64{4, 99}})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
}

func TestHandleDebtResyncTask(t *testing.T) {
	resyncer := &fakeResyncer{}
	handler := HandleDebtResyncTask(resyncer, slog.Default())

	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskTypeDebtResync, nil)))
	require.Equal(t, 1, resyncer.calls)

	resyncer.err = errors.New("db down")
	require.Error(t, handler(context.Background(), asynq.NewTask(TaskTypeDebtResync, nil)))
}

func TestHandleIdempotencySweepTaskPassesRetention(t *testing.T) {
	sweeper := &fakeSweeper{}
	handler := HandleIdempotencySweepTask(sweeper, 48*time.Hour, slog.Default())

	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskTypeIdempotencySweep, nil)))
	require.Equal(t, 48*time.Hour, sweeper.olderThan)
}
