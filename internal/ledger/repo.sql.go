package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/debt"
	"github.com/meridian-wms/meridian-wms/internal/lots"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository persists transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations completion paths need:
// the document row itself, the lot store sharing the same database
// transaction, and debt emission.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Transaction, error)
	Insert(ctx context.Context, txn Transaction) (int64, error)
	UpdateDraft(ctx context.Context, txn Transaction) error
	SetStatus(ctx context.Context, id int64, status TransactionStatus) error
	NextCode(ctx context.Context, kind TransactionKind) (string, error)
	Lots() lots.TxStore
	InsertDebtNote(ctx context.Context, note debt.Note) (int64, error)
	RecomputeCustomerDebt(ctx context.Context, customerID int64) (float64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return &shared.ConcurrencyConflictError{Resource: "transaction"}
	}
	return err
}

const txColumns = `id, code, kind, status, store_id, customer_id, staff_id, stocktake_id, total_amount, paid_amount, note, detail, created_by, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	err := row.Scan(&txn.ID, &txn.Code, &txn.Kind, &txn.Status, &txn.StoreID, &txn.CustomerID,
		&txn.StaffID, &txn.StocktakeID, &txn.TotalAmount, &txn.PaidAmount, &txn.Note, &txn.Detail,
		&txn.CreatedBy, &txn.CreatedAt, &txn.UpdatedAt)
	return txn, err
}

// Get fetches one transaction by id.
func (r *Repository) Get(ctx context.Context, id int64) (Transaction, error) {
	txn, err := scanTransaction(r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, shared.NewNotFound("transaction", id)
	}
	return txn, err
}

// List returns transactions matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transaction, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+txColumns+` FROM transactions
WHERE ($1 = '' OR kind=$1)
  AND ($2 = '' OR status=$2)
  AND ($3 = 0 OR store_id=$3)
  AND created_at BETWEEN COALESCE(NULLIF($4, '0001-01-01'::timestamptz), '-infinity') AND COALESCE(NULLIF($5, '0001-01-01'::timestamptz), 'infinity')
ORDER BY id DESC
LIMIT $6 OFFSET $7`,
		string(filter.Kind), string(filter.Status), filter.StoreID, filter.From, filter.To, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions
WHERE ($1 = '' OR kind=$1)
  AND ($2 = '' OR status=$2)
  AND ($3 = 0 OR store_id=$3)
  AND created_at BETWEEN COALESCE(NULLIF($4, '0001-01-01'::timestamptz), '-infinity') AND COALESCE(NULLIF($5, '0001-01-01'::timestamptz), 'infinity')`,
		string(filter.Kind), string(filter.Status), filter.StoreID, filter.From, filter.To).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Transaction, error) {
	txn, err := scanTransaction(r.tx.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, shared.NewNotFound("transaction", id)
	}
	return txn, err
}

func (r *txRepository) Insert(ctx context.Context, txn Transaction) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transactions (code, kind, status, store_id, customer_id, staff_id, stocktake_id, total_amount, paid_amount, note, detail, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW(),NOW()) RETURNING id`,
		txn.Code, string(txn.Kind), string(txn.Status), txn.StoreID, txn.CustomerID, txn.StaffID,
		txn.StocktakeID, txn.TotalAmount, txn.PaidAmount, txn.Note, txn.Detail, txn.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateDraft(ctx context.Context, txn Transaction) error {
	_, err := r.tx.Exec(ctx, `UPDATE transactions SET customer_id=$2, total_amount=$3, paid_amount=$4, note=$5, detail=$6, updated_at=NOW() WHERE id=$1`,
		txn.ID, txn.CustomerID, txn.TotalAmount, txn.PaidAmount, txn.Note, txn.Detail)
	return err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status TransactionStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE transactions SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return err
}

// NextCode draws the per-kind sequence and renders the human document code,
// e.g. PN000007 for imports and PB000007 for sales.
func (r *txRepository) NextCode(ctx context.Context, kind TransactionKind) (string, error) {
	seqName := "import_code_seq"
	prefix := "PN"
	if kind == KindSale {
		seqName = "sale_code_seq"
		prefix = "PB"
	}
	var seq int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval($1::regclass)`, seqName).Scan(&seq); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", prefix, seq), nil
}

func (r *txRepository) Lots() lots.TxStore {
	return lots.NewTxStore(r.tx)
}

func (r *txRepository) InsertDebtNote(ctx context.Context, note debt.Note) (int64, error) {
	return debt.InsertNoteTx(ctx, r.tx, note)
}

func (r *txRepository) RecomputeCustomerDebt(ctx context.Context, customerID int64) (float64, error) {
	return debt.RecomputeCustomerTotalTx(ctx, r.tx, customerID)
}
