package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// Repository reads reference data. The inventory core only needs lookups and
// existence checks; reference data maintenance lives elsewhere.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reference data repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) exists(ctx context.Context, query, entity string, id int64) error {
	var found bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&found); err != nil {
		return err
	}
	if !found {
		return shared.NewNotFound(entity, id)
	}
	return nil
}

// ProductExists reports whether an active product resolves.
func (r *Repository) ProductExists(ctx context.Context, id int64) error {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1 AND active)`, "product", id)
}

// CustomerExists reports whether a customer resolves.
func (r *Repository) CustomerExists(ctx context.Context, id int64) error {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`, "customer", id)
}

// StoreExists reports whether a store resolves.
func (r *Repository) StoreExists(ctx context.Context, id int64) error {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM stores WHERE id = $1)`, "store", id)
}

// StaffExists reports whether an active staff member resolves.
func (r *Repository) StaffExists(ctx context.Context, id int64) error {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM staff WHERE id = $1 AND active)`, "staff", id)
}

// ZoneExists reports whether a zone resolves.
func (r *Repository) ZoneExists(ctx context.Context, id int64) error {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM zones WHERE id = $1)`, "zone", id)
}

// GetProduct fetches one product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, unit, active, created_at, updated_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NewNotFound("product", id)
	}
	return p, err
}

// ListProducts returns active products matching the filter.
func (r *Repository) ListProducts(ctx context.Context, filter ListFilter) ([]Product, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, unit, active, created_at, updated_at FROM products
WHERE active AND ($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')
ORDER BY name
LIMIT $2 OFFSET $3`, filter.Search, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetCustomer fetches one customer with the denormalised debt total.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT id, name, phone, total_debt FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Phone, &c.TotalDebt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.NewNotFound("customer", id)
	}
	return c, err
}

// GetStore fetches one store by id.
func (r *Repository) GetStore(ctx context.Context, id int64) (Store, error) {
	var s Store
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, address FROM stores WHERE id = $1`, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.Address)
	if errors.Is(err, pgx.ErrNoRows) {
		return Store{}, shared.NewNotFound("store", id)
	}
	return s, err
}

// ListZones returns the zones of a store.
func (r *Repository) ListZones(ctx context.Context, storeID int64) ([]Zone, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, store_id, code, name FROM zones WHERE store_id = $1 ORDER BY code`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var zones []Zone
	for rows.Next() {
		var z Zone
		if err := rows.Scan(&z.ID, &z.StoreID, &z.Code, &z.Name); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
