package stocktake

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/lots"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository persists stocktakes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations completion needs: the
// stocktake row plus the lot store sharing the same database transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Stocktake, error)
	Insert(ctx context.Context, st Stocktake) (int64, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	UpdateDetail(ctx context.Context, id int64, detail []byte) error
	NextCode(ctx context.Context) (string, error)
	Lots() lots.TxStore
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stocktake repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return &shared.ConcurrencyConflictError{Resource: "stocktake"}
	}
	return err
}

const stColumns = `id, code, store_id, status, date, note, detail, created_by, created_at, updated_at`

func scanStocktake(row pgx.Row) (Stocktake, error) {
	var st Stocktake
	err := row.Scan(&st.ID, &st.Code, &st.StoreID, &st.Status, &st.Date, &st.Note, &st.Detail,
		&st.CreatedBy, &st.CreatedAt, &st.UpdatedAt)
	return st, err
}

// Get fetches one stocktake by id.
func (r *Repository) Get(ctx context.Context, id int64) (Stocktake, error) {
	st, err := scanStocktake(r.pool.QueryRow(ctx, `SELECT `+stColumns+` FROM stocktakes WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Stocktake{}, shared.NewNotFound("stocktake", id)
	}
	return st, err
}

// List returns stocktakes matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Stocktake, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+stColumns+` FROM stocktakes
WHERE ($1 = 0 OR store_id=$1) AND ($2 = '' OR status=$2)
ORDER BY id DESC
LIMIT $3 OFFSET $4`, filter.StoreID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	result := []Stocktake{}
	for rows.Next() {
		st, err := scanStocktake(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stocktakes WHERE ($1 = 0 OR store_id=$1) AND ($2 = '' OR status=$2)`,
		filter.StoreID, string(filter.Status)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Stocktake, error) {
	st, err := scanStocktake(r.tx.QueryRow(ctx, `SELECT `+stColumns+` FROM stocktakes WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Stocktake{}, shared.NewNotFound("stocktake", id)
	}
	return st, err
}

func (r *txRepository) Insert(ctx context.Context, st Stocktake) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO stocktakes (code, store_id, status, date, note, detail, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		st.Code, st.StoreID, st.Status, st.Date, st.Note, st.Detail, st.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert stocktake: %w", err)
	}
	return id, nil
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stocktakes SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("set stocktake status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound("stocktake", id)
	}
	return nil
}

func (r *txRepository) UpdateDetail(ctx context.Context, id int64, detail []byte) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stocktakes SET detail=$2, updated_at=NOW() WHERE id=$1`, id, detail)
	if err != nil {
		return fmt.Errorf("update stocktake detail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFound("stocktake", id)
	}
	return nil
}

func (r *txRepository) NextCode(ctx context.Context) (string, error) {
	var seq int64
	if err := r.tx.QueryRow(ctx, `SELECT nextval('stocktake_code_seq')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("next stocktake code: %w", err)
	}
	return fmt.Sprintf("KK%06d", seq), nil
}

func (r *txRepository) Lots() lots.TxStore {
	return lots.NewTxStore(r.tx)
}
