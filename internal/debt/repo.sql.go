package debt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

const noteColumns = `id, customer_id, store_id, amount, type, source_kind, source_id, note, deleted, created_by, created_at`

func scanNote(row pgx.Row) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.CustomerID, &n.StoreID, &n.Amount, &n.Type, &n.SourceKind, &n.SourceID, &n.Note, &n.Deleted, &n.CreatedBy, &n.CreatedAt)
	return n, err
}

// InsertNoteTx writes a debt note inside an existing database transaction so
// sale completion and its settlement note commit atomically.
func InsertNoteTx(ctx context.Context, tx pgx.Tx, n Note) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO debt_notes (customer_id, store_id, amount, type, source_kind, source_id, note, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		n.CustomerID, n.StoreID, n.Amount, n.Type, n.SourceKind, n.SourceID, n.Note, n.CreatedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert debt note: %w", err)
	}
	return id, nil
}

// RecomputeCustomerTotalTx refreshes the customer's denormalised running
// balance from the surviving notes and returns the new total.
func RecomputeCustomerTotalTx(ctx context.Context, tx pgx.Tx, customerID int64) (float64, error) {
	var total float64
	err := tx.QueryRow(ctx, `
		UPDATE customers
		SET total_debt = COALESCE((SELECT SUM(amount) FROM debt_notes WHERE customer_id = $1 AND NOT deleted), 0),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING total_debt`, customerID).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.NewNotFound("customer", customerID)
		}
		return 0, fmt.Errorf("recompute customer debt: %w", err)
	}
	return total, nil
}

// Repository provides pool-backed access to debt notes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository over pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes a note outside any caller transaction and refreshes the
// customer total in one unit.
func (r *Repository) Insert(ctx context.Context, n Note) (Note, float64, error) {
	var total float64
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		id, err := InsertNoteTx(ctx, tx, n)
		if err != nil {
			return err
		}
		n.ID = id
		total, err = RecomputeCustomerTotalTx(ctx, tx, n.CustomerID)
		return err
	})
	if err != nil {
		return Note{}, 0, err
	}
	return n, total, nil
}

// Get fetches one note by id.
func (r *Repository) Get(ctx context.Context, id int64) (Note, error) {
	n, err := scanNote(r.pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM debt_notes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Note{}, shared.NewNotFound("debt note", id)
		}
		return Note{}, fmt.Errorf("get debt note: %w", err)
	}
	return n, nil
}

// ListByCustomer returns the customer's notes, newest first. Soft-deleted
// notes are excluded.
func (r *Repository) ListByCustomer(ctx context.Context, customerID int64, p shared.Pagination) ([]Note, int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+noteColumns+`
		FROM debt_notes
		WHERE customer_id = $1 AND NOT deleted
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, customerID, p.PerPage, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list debt notes: %w", err)
	}
	defer rows.Close()

	notes := make([]Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan debt note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM debt_notes WHERE customer_id = $1 AND NOT deleted`, customerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count debt notes: %w", err)
	}
	return notes, total, nil
}

// Summary computes the customer's running balance from surviving notes.
func (r *Repository) Summary(ctx context.Context, customerID int64) (Summary, error) {
	var summary Summary
	summary.CustomerID = customerID
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM debt_notes
		WHERE customer_id = $1 AND NOT deleted`, customerID).
		Scan(&summary.TotalDebt, &summary.NoteCount)
	if err != nil {
		return Summary{}, fmt.Errorf("debt summary: %w", err)
	}
	summary.AsOf = time.Now().UTC()
	return summary, nil
}

// SoftDelete marks a note deleted and refreshes the customer total.
func (r *Repository) SoftDelete(ctx context.Context, id int64) (float64, error) {
	var total float64
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		var customerID int64
		err := tx.QueryRow(ctx, `UPDATE debt_notes SET deleted = TRUE WHERE id = $1 AND NOT deleted RETURNING customer_id`, id).Scan(&customerID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shared.NewNotFound("debt note", id)
			}
			return fmt.Errorf("delete debt note: %w", err)
		}
		total, err = RecomputeCustomerTotalTx(ctx, tx, customerID)
		return err
	})
	return total, err
}

// CustomersWithNotes lists distinct customer ids holding at least one live
// note. The debt resync job walks this set.
func (r *Repository) CustomersWithNotes(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT customer_id FROM debt_notes WHERE NOT deleted ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("customers with notes: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResyncCustomer recomputes one customer's denormalised total outside a
// caller transaction.
func (r *Repository) ResyncCustomer(ctx context.Context, customerID int64) (float64, error) {
	var total float64
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		var err error
		total, err = RecomputeCustomerTotalTx(ctx, tx, customerID)
		return err
	})
	return total, err
}
