package stocktake

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/debt"
	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/lots"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// memoryStore implements RepositoryPort, LotReader and LotResolver over maps.
// WithTx holds the mutex for the whole callback and rolls back shadow copies
// on error, mirroring the row locking and atomicity of the real repository.
type memoryStore struct {
	mu       sync.Mutex
	nextID   int64
	codeSeq  int64
	nextLot  int64
	batchSeq int64
	sts      map[int64]*Stocktake
	lots     map[int64]*lots.Lot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nextID: 1, nextLot: 1, sts: map[int64]*Stocktake{}, lots: map[int64]*lots.Lot{}}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stSnap := map[int64]*Stocktake{}
	for id, st := range m.sts {
		cp := *st
		stSnap[id] = &cp
	}
	lotSnap := map[int64]*lots.Lot{}
	for id, lot := range m.lots {
		cp := *lot
		lotSnap[id] = &cp
	}
	seqs := [4]int64{m.nextID, m.codeSeq, m.nextLot, m.batchSeq}
	if err := fn(ctx, &memoryTx{store: m}); err != nil {
		m.sts, m.lots = stSnap, lotSnap
		m.nextID, m.codeSeq, m.nextLot, m.batchSeq = seqs[0], seqs[1], seqs[2], seqs[3]
		return err
	}
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id int64) (Stocktake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sts[id]
	if !ok {
		return Stocktake{}, shared.NewNotFound("stocktake", id)
	}
	return *st, nil
}

func (m *memoryStore) List(ctx context.Context, filter ListFilter) ([]Stocktake, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Stocktake, 0)
	for _, st := range m.sts {
		if filter.StoreID != 0 && st.StoreID != filter.StoreID {
			continue
		}
		if filter.Status != "" && st.Status != filter.Status {
			continue
		}
		out = append(out, *st)
	}
	return out, len(out), nil
}

func (m *memoryStore) SumRemainByProduct(ctx context.Context, storeID, productID int64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for _, lot := range m.lots {
		if lot.StoreID == storeID && lot.ProductID == productID {
			sum += lot.RemainQuantity
		}
	}
	return sum, nil
}

func (m *memoryStore) GetLot(ctx context.Context, id int64) (lots.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lot, ok := m.lots[id]
	if !ok {
		return lots.Lot{}, shared.NewNotFound("lot", id)
	}
	return *lot, nil
}

func (m *memoryStore) GetByBatchCode(ctx context.Context, batchCode string) (lots.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lot := range m.lots {
		if lot.BatchCode == batchCode {
			return *lot, nil
		}
	}
	return lots.Lot{}, shared.NewNotFound("lot", batchCode)
}

// resolverAdapter exposes the memory store as a LotResolver.
type resolverAdapter struct {
	store *memoryStore
}

func (r resolverAdapter) Get(ctx context.Context, id int64) (lots.Lot, error) {
	return r.store.GetLot(ctx, id)
}

func (r resolverAdapter) GetByBatchCode(ctx context.Context, batchCode string) (lots.Lot, error) {
	return r.store.GetByBatchCode(ctx, batchCode)
}

type memoryTx struct {
	store *memoryStore
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Stocktake, error) {
	st, ok := t.store.sts[id]
	if !ok {
		return Stocktake{}, shared.NewNotFound("stocktake", id)
	}
	return *st, nil
}

func (t *memoryTx) Insert(ctx context.Context, st Stocktake) (int64, error) {
	st.ID = t.store.nextID
	t.store.nextID++
	st.CreatedAt = time.Now()
	st.UpdatedAt = st.CreatedAt
	t.store.sts[st.ID] = &st
	return st.ID, nil
}

func (t *memoryTx) SetStatus(ctx context.Context, id int64, status Status) error {
	st, ok := t.store.sts[id]
	if !ok {
		return shared.NewNotFound("stocktake", id)
	}
	st.Status = status
	return nil
}

func (t *memoryTx) UpdateDetail(ctx context.Context, id int64, detail []byte) error {
	st, ok := t.store.sts[id]
	if !ok {
		return shared.NewNotFound("stocktake", id)
	}
	st.Detail = detail
	return nil
}

func (t *memoryTx) NextCode(ctx context.Context) (string, error) {
	t.store.codeSeq++
	return fmt.Sprintf("KK%06d", t.store.codeSeq), nil
}

func (t *memoryTx) Lots() lots.TxStore {
	return &memoryLotStore{store: t.store}
}

type memoryLotStore struct {
	store *memoryStore
}

func (s *memoryLotStore) GetForUpdate(ctx context.Context, id int64) (lots.Lot, error) {
	lot, ok := s.store.lots[id]
	if !ok {
		return lots.Lot{}, shared.NewNotFound("lot", id)
	}
	return *lot, nil
}

func (s *memoryLotStore) GetByBatchCodeForUpdate(ctx context.Context, batchCode string) (lots.Lot, error) {
	for _, lot := range s.store.lots {
		if lot.BatchCode == batchCode {
			return *lot, nil
		}
	}
	return lots.Lot{}, shared.NewNotFound("lot", batchCode)
}

func (s *memoryLotStore) UpdateQuantity(ctx context.Context, id int64, remain float64) error {
	lot, ok := s.store.lots[id]
	if !ok {
		return shared.NewNotFound("lot", id)
	}
	lot.RemainQuantity = remain
	return nil
}

func (s *memoryLotStore) UpdateZone(ctx context.Context, id int64, zoneID *int64, reconciled bool) error {
	lot, ok := s.store.lots[id]
	if !ok {
		return shared.NewNotFound("lot", id)
	}
	lot.ZoneID = zoneID
	lot.Reconciled = reconciled
	return nil
}

func (s *memoryLotStore) Insert(ctx context.Context, lot lots.Lot) (int64, error) {
	lot.ID = s.store.nextLot
	s.store.nextLot++
	s.store.lots[lot.ID] = &lot
	return lot.ID, nil
}

func (s *memoryLotStore) NextBatchSeq(ctx context.Context) (int64, error) {
	s.store.batchSeq++
	return s.store.batchSeq, nil
}

type allowRefs struct{}

func (allowRefs) ProductExists(ctx context.Context, id int64) error {
	if id <= 0 || id == 404 {
		return shared.NewNotFound("product", id)
	}
	return nil
}

func (allowRefs) StoreExists(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.NewNotFound("store", id)
	}
	return nil
}

func staff(storeID int64) shared.Actor {
	return shared.Actor{UserID: 7, StoreID: storeID}
}

func newTestService(store *memoryStore) *Service {
	return NewService(store, store, allowRefs{}, nil, nil)
}

func seedLot(store *memoryStore, productID int64, remain float64, zoneID *int64) *lots.Lot {
	store.batchSeq++
	id := store.nextLot
	store.nextLot++
	lot := &lots.Lot{
		ID:             id,
		BatchCode:      fmt.Sprintf("LH%06d", store.batchSeq),
		ProductID:      productID,
		StoreID:        1,
		ZoneID:         zoneID,
		ImportQuantity: remain,
		RemainQuantity: remain,
		UnitSalePrice:  10,
	}
	store.lots[id] = lot
	return lot
}

func TestCreateSnapshotsRecordedRemainPerProduct(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	seedLot(store, 1, 30, zone(10))
	seedLot(store, 1, 40, zone(20))

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{
			{ProductID: 1, ZoneID: zone(10), Counted: 40},
			{ProductID: 1, ZoneID: zone(20), Counted: 20},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "KK000001", st.Code)
	require.Equal(t, StatusDraft, st.Status)
	require.Len(t, st.Lines, 1)

	line := st.Lines[0]
	require.Equal(t, 60.0, line.Counted)
	require.Equal(t, 70.0, line.RecordedRemain)
	require.Equal(t, -10.0, line.Diff)
	require.Equal(t, []int64{10, 20}, line.ZoneIDs)
}

func TestCreateValidatesInput(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, staff(1), CreateRequest{StoreID: 1})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 404, Counted: 5}},
	})
	require.True(t, shared.IsNotFound(err))

	_, err = svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Status:  StatusCompleted,
		Entries: []Entry{{ProductID: 1, Counted: 5}},
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	_, err = svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 1, Counted: -1}},
	})
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestGetByIDRegroupsLegacyDetail(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	// A row written before grouping: one per-zone line each carrying the
	// full per-product recorded remain.
	store.sts[1] = &Stocktake{
		ID: 1, Code: "KK000001", StoreID: 1, Status: StatusDraft,
		Detail: []byte(`[
			{"productId":1,"zoneIds":[10],"countedQuantity":40,"recordedRemain":70},
			{"productId":1,"zoneIds":[20],"countedQuantity":20,"recordedRemain":70}
		]`),
	}

	st, err := svc.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, st.Lines, 1)
	require.Equal(t, 60.0, st.Lines[0].Counted)
	require.Equal(t, 70.0, st.Lines[0].RecordedRemain)
	require.Equal(t, -10.0, st.Lines[0].Diff)
}

func TestCompleteOverwritesCountedLots(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	lot := seedLot(store, 1, 70, zone(10))

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 1, BatchCode: lot.BatchCode, ZoneID: zone(10), RealZoneID: zone(20), Counted: 60}},
	})
	require.NoError(t, err)

	done, err := svc.UpdateStatus(ctx, staff(1), st.ID, StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)

	require.Equal(t, 60.0, store.lots[lot.ID].RemainQuantity)
	require.True(t, store.lots[lot.ID].Reconciled)
	require.Equal(t, int64(20), *store.lots[lot.ID].ZoneID)
}

func TestCompleteResolvesLotIDToBatchCode(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	lot := seedLot(store, 1, 70, nil)

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 1, LotID: lot.ID, Counted: 65}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, staff(1), st.ID, StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, 65.0, store.lots[lot.ID].RemainQuantity)
}

func TestCompleteRollsBackWhenCountExceedsImport(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	good := seedLot(store, 1, 70, nil)
	bad := seedLot(store, 2, 10, nil)

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{
			{ProductID: 1, BatchCode: good.BatchCode, Counted: 60},
			{ProductID: 2, BatchCode: bad.BatchCode, Counted: 99},
		},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, staff(1), st.ID, StatusCompleted)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))

	require.Equal(t, 70.0, store.lots[good.ID].RemainQuantity)
	require.Equal(t, 10.0, store.lots[bad.ID].RemainQuantity)
	require.Equal(t, StatusDraft, store.sts[st.ID].Status)
}

func TestCancelNeverTouchesLots(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	lot := seedLot(store, 1, 70, nil)

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 1, BatchCode: lot.BatchCode, Counted: 60}},
	})
	require.NoError(t, err)

	cancelled, err := svc.UpdateStatus(ctx, staff(1), st.ID, StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, 70.0, store.lots[lot.ID].RemainQuantity)
	require.False(t, store.lots[lot.ID].Reconciled)
}

func TestTerminalStocktakeRejectsTransitions(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 1, Counted: 5}},
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, staff(1), st.ID, StatusCompleted)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, staff(1), st.ID, StatusCancelled)
	require.Equal(t, shared.KindInvalidTransition, shared.KindOf(err))
}

func TestBuildBalanceSaleFromShortage(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	short := seedLot(store, 1, 70, zone(10))
	seedLot(store, 2, 5, nil)

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{
			{ProductID: 1, LotID: short.ID, ZoneID: zone(10), Counted: 60},
			{ProductID: 2, Counted: 9}, // surplus: counted over the record
		},
	})
	require.NoError(t, err)

	draft, err := svc.BuildBalanceSale(ctx, staff(1), resolverAdapter{store}, st.ID)
	require.NoError(t, err)

	require.Len(t, draft.Sale.Lines, 1)
	line := draft.Sale.Lines[0]
	require.Equal(t, short.ID, line.LotID)
	require.Equal(t, short.BatchCode, line.BatchCode)
	require.Equal(t, 10.0, line.Quantity)
	require.Equal(t, short.UnitSalePrice, line.UnitSalePrice)

	require.Equal(t, draft.Sale.PaidAmount, ledger.SaleTotal(draft.Sale.Lines))
	require.NotNil(t, draft.Sale.StocktakeID)
	require.Equal(t, st.ID, *draft.Sale.StocktakeID)
	require.Equal(t, ledger.StatusDraft, draft.Sale.Status)

	require.Len(t, draft.Surpluses, 1)
	require.Equal(t, int64(2), draft.Surpluses[0].ProductID)
	require.Equal(t, 4.0, draft.Surpluses[0].Diff)
}

func TestBuildBalanceSaleFallsBackToBatchCode(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	lot := seedLot(store, 1, 70, nil)

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 1, LotID: 999, BatchCode: lot.BatchCode, Counted: 60}},
	})
	require.NoError(t, err)

	draft, err := svc.BuildBalanceSale(ctx, staff(1), resolverAdapter{store}, st.ID)
	require.NoError(t, err)
	require.Equal(t, lot.ID, draft.Sale.Lines[0].LotID)
}

func TestBuildBalanceSaleStubWhenNoLotResolves(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	seedLot(store, 1, 70, nil)

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 1, Counted: 60}},
	})
	require.NoError(t, err)

	draft, err := svc.BuildBalanceSale(ctx, staff(1), resolverAdapter{store}, st.ID)
	require.NoError(t, err)

	line := draft.Sale.Lines[0]
	require.Equal(t, int64(0), line.LotID)
	require.Equal(t, int64(1), line.ProductID)
	require.Equal(t, 10.0, line.Quantity)
	require.Equal(t, 0.0, line.UnitSalePrice)
}

func TestBuildBalanceSaleWithoutShortageFails(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	seedLot(store, 1, 60, nil)

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 1, Counted: 60}},
	})
	require.NoError(t, err)

	_, err = svc.BuildBalanceSale(ctx, staff(1), resolverAdapter{store}, st.ID)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}

// ledgerBridge implements ledger.RepositoryPort over the same lot map so the
// balance draft can run through the real sale completion path.
type ledgerBridge struct {
	store  *memoryStore
	nextID int64
	txns   map[int64]*ledger.Transaction
}

func newLedgerBridge(store *memoryStore) *ledgerBridge {
	return &ledgerBridge{store: store, nextID: 1, txns: map[int64]*ledger.Transaction{}}
}

func (b *ledgerBridge) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	lotSnap := map[int64]*lots.Lot{}
	for id, lot := range b.store.lots {
		cp := *lot
		lotSnap[id] = &cp
	}
	txnSnap := map[int64]*ledger.Transaction{}
	for id, txn := range b.txns {
		cp := *txn
		txnSnap[id] = &cp
	}
	if err := fn(ctx, &ledgerBridgeTx{b}); err != nil {
		b.store.lots = lotSnap
		b.txns = txnSnap
		return err
	}
	return nil
}

func (b *ledgerBridge) Get(ctx context.Context, id int64) (ledger.Transaction, error) {
	txn, ok := b.txns[id]
	if !ok {
		return ledger.Transaction{}, shared.NewNotFound("transaction", id)
	}
	return *txn, nil
}

func (b *ledgerBridge) List(ctx context.Context, filter ledger.ListFilter) ([]ledger.Transaction, int, error) {
	return nil, 0, nil
}

type ledgerBridgeTx struct {
	b *ledgerBridge
}

func (t *ledgerBridgeTx) GetForUpdate(ctx context.Context, id int64) (ledger.Transaction, error) {
	txn, ok := t.b.txns[id]
	if !ok {
		return ledger.Transaction{}, shared.NewNotFound("transaction", id)
	}
	return *txn, nil
}

func (t *ledgerBridgeTx) Insert(ctx context.Context, txn ledger.Transaction) (int64, error) {
	txn.ID = t.b.nextID
	t.b.nextID++
	t.b.txns[txn.ID] = &txn
	return txn.ID, nil
}

func (t *ledgerBridgeTx) UpdateDraft(ctx context.Context, txn ledger.Transaction) error {
	stored, ok := t.b.txns[txn.ID]
	if !ok {
		return shared.NewNotFound("transaction", txn.ID)
	}
	*stored = txn
	return nil
}

func (t *ledgerBridgeTx) SetStatus(ctx context.Context, id int64, status ledger.TransactionStatus) error {
	stored, ok := t.b.txns[id]
	if !ok {
		return shared.NewNotFound("transaction", id)
	}
	stored.Status = status
	return nil
}

func (t *ledgerBridgeTx) NextCode(ctx context.Context, kind ledger.TransactionKind) (string, error) {
	return fmt.Sprintf("PB%06d", t.b.nextID), nil
}

func (t *ledgerBridgeTx) Lots() lots.TxStore {
	return &memoryLotStore{store: t.b.store}
}

func (t *ledgerBridgeTx) InsertDebtNote(ctx context.Context, note debt.Note) (int64, error) {
	return 1, nil
}

func (t *ledgerBridgeTx) RecomputeCustomerDebt(ctx context.Context, customerID int64) (float64, error) {
	return 0, nil
}

type ledgerRefs struct{}

func (ledgerRefs) ProductExists(ctx context.Context, id int64) error  { return nil }
func (ledgerRefs) CustomerExists(ctx context.Context, id int64) error { return nil }
func (ledgerRefs) StoreExists(ctx context.Context, id int64) error    { return nil }
func (ledgerRefs) StaffExists(ctx context.Context, id int64) error    { return nil }

func TestBalanceDraftDeductsLotThroughSaleCompletion(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()
	lot := seedLot(store, 1, 70, nil)

	st, err := svc.Create(ctx, staff(1), CreateRequest{
		StoreID: 1,
		Entries: []Entry{{ProductID: 1, LotID: lot.ID, Counted: 60}},
	})
	require.NoError(t, err)

	draft, err := svc.BuildBalanceSale(ctx, staff(1), resolverAdapter{store}, st.ID)
	require.NoError(t, err)

	// Lots are untouched until the drafted sale completes.
	require.Equal(t, 70.0, store.lots[lot.ID].RemainQuantity)

	ledgerSvc := ledger.NewService(newLedgerBridge(store), ledgerRefs{}, nil, nil, nil, nil, nil)
	sale, err := ledgerSvc.CreateSale(ctx, staff(1), draft.Sale)
	require.NoError(t, err)

	done, err := ledgerSvc.CompleteSale(ctx, staff(1), sale.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusComplete, done.Status)
	require.Equal(t, 60.0, store.lots[lot.ID].RemainQuantity)
}
