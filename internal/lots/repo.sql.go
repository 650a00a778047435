package lots

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository persists lots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const lotColumns = `id, batch_code, product_id, store_id, zone_id, import_quantity, remain_quantity, unit_cost, unit_sale_price, expire_date, reconciled, created_at, updated_at`

func scanLot(row pgx.Row) (Lot, error) {
	var lot Lot
	err := row.Scan(&lot.ID, &lot.BatchCode, &lot.ProductID, &lot.StoreID, &lot.ZoneID,
		&lot.ImportQuantity, &lot.RemainQuantity, &lot.UnitCost, &lot.UnitSalePrice,
		&lot.ExpireDate, &lot.Reconciled, &lot.CreatedAt, &lot.UpdatedAt)
	return lot, err
}

// WithTx executes the callback inside a repeatable-read transaction exposing a
// transactional lot store.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil {
		return errors.New("lots repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
	if db.IsSerializationFailure(err) {
		return &shared.ConcurrencyConflictError{Resource: "lot"}
	}
	return err
}

// Get fetches one lot by id.
func (r *Repository) Get(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, shared.NewNotFound("lot", id)
	}
	return lot, err
}

// GetByBatchCode fetches one lot by its human-readable batch code.
func (r *Repository) GetByBatchCode(ctx context.Context, batchCode string) (Lot, error) {
	lot, err := scanLot(r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE batch_code=$1`, batchCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, shared.NewNotFound("lot", batchCode)
	}
	return lot, err
}

// FindByProductWithRemainingStock lists a product's lots that still hold
// stock, oldest expiry first so stock rotates naturally.
func (r *Repository) FindByProductWithRemainingStock(ctx context.Context, storeID, productID int64) ([]Lot, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM lots
WHERE store_id=$1 AND product_id=$2 AND remain_quantity > 0
ORDER BY expire_date ASC NULLS LAST, id ASC`, storeID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Lot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lot)
	}
	return result, rows.Err()
}

// SumRemainByProduct returns the recorded remaining quantity of a product
// across all its lots in a store.
func (r *Repository) SumRemainByProduct(ctx context.Context, storeID, productID int64) (float64, error) {
	var sum float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(remain_quantity), 0) FROM lots WHERE store_id=$1 AND product_id=$2`, storeID, productID).Scan(&sum)
	return sum, err
}

// List returns lots matching the filter.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Lot, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+` FROM lots
WHERE store_id=$1
  AND ($2 = 0 OR product_id=$2)
  AND (NOT $3 OR remain_quantity > 0)
ORDER BY expire_date ASC NULLS LAST, id ASC
LIMIT $4`, filter.StoreID, filter.ProductID, filter.OnlyStock, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Lot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lot)
	}
	return result, rows.Err()
}

type pgTxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps a pgx transaction as a TxStore so other modules can mutate
// lots inside their own transaction boundary.
func NewTxStore(tx pgx.Tx) TxStore {
	return &pgTxStore{tx: tx}
}

func (s *pgTxStore) GetForUpdate(ctx context.Context, id int64) (Lot, error) {
	lot, err := scanLot(s.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, shared.NewNotFound("lot", id)
	}
	return lot, err
}

func (s *pgTxStore) GetByBatchCodeForUpdate(ctx context.Context, batchCode string) (Lot, error) {
	lot, err := scanLot(s.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE batch_code=$1 FOR UPDATE`, batchCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lot{}, shared.NewNotFound("lot", batchCode)
	}
	return lot, err
}

func (s *pgTxStore) UpdateQuantity(ctx context.Context, id int64, remain float64) error {
	_, err := s.tx.Exec(ctx, `UPDATE lots SET remain_quantity=$2, updated_at=NOW() WHERE id=$1`, id, remain)
	return err
}

func (s *pgTxStore) UpdateZone(ctx context.Context, id int64, zoneID *int64, reconciled bool) error {
	_, err := s.tx.Exec(ctx, `UPDATE lots SET zone_id=$2, reconciled=$3, updated_at=NOW() WHERE id=$1`, id, zoneID, reconciled)
	return err
}

func (s *pgTxStore) Insert(ctx context.Context, lot Lot) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO lots (batch_code, product_id, store_id, zone_id, import_quantity, remain_quantity, unit_cost, unit_sale_price, expire_date, reconciled, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW()) RETURNING id`,
		lot.BatchCode, lot.ProductID, lot.StoreID, lot.ZoneID, lot.ImportQuantity, lot.RemainQuantity,
		lot.UnitCost, lot.UnitSalePrice, lot.ExpireDate, lot.Reconciled).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, shared.NewValidation("batch_code", "batch code already exists")
	}
	return id, err
}

func (s *pgTxStore) NextBatchSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.tx.QueryRow(ctx, `SELECT nextval('lot_batch_seq')`).Scan(&seq)
	return seq, err
}
