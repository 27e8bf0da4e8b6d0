package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/arkova/catalog-core/internal/catalog/entity"
)

// ProductRepo provides data access for products and their option pairs.
type ProductRepo struct {
	db *sqlx.DB
}

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

// DB exposes the pool for service-level transactions.
func (r *ProductRepo) DB() *sqlx.DB { return r.db }

// Create inserts a product row.
func (r *ProductRepo) Create(ctx context.Context, p *entity.Product) error {
	const q = `INSERT INTO app.products (id, region_id, sku, name, description, status)
	           VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.RegionID, p.SKU, p.Name, p.Description, p.Status)
	return err
}

// GetByID fetches a product scoped to its region.
func (r *ProductRepo) GetByID(ctx context.Context, regionID, id int64) (*entity.Product, error) {
	const q = `SELECT id, region_id, sku, name, description, status, created_at, updated_at
	           FROM app.products WHERE region_id=$1 AND id=$2`
	var p entity.Product
	if err := r.db.GetContext(ctx, &p, q, regionID, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns products of one region with pagination.
func (r *ProductRepo) List(ctx context.Context, regionID int64, limit, offset int) ([]entity.Product, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT id, region_id, sku, name, description, status, created_at, updated_at
	           FROM app.products WHERE region_id=$1 ORDER BY sku LIMIT $2 OFFSET $3`
	var ps []entity.Product
	if err := r.db.SelectContext(ctx, &ps, q, regionID, limit, offset); err != nil {
		return nil, err
	}
	return ps, nil
}

// Update rewrites the mutable product columns and returns affected rows.
func (r *ProductRepo) Update(ctx context.Context, p *entity.Product) (int64, error) {
	const q = `UPDATE app.products SET name=$3, description=$4, status=$5, updated_at=NOW()
	           WHERE region_id=$1 AND id=$2`
	res, err := r.db.ExecContext(ctx, q, p.RegionID, p.ID, p.Name, p.Description, p.Status)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// AddOptionPair upserts the option row for name and attaches value to it.
// optionID and valueID are assigned by the caller.
func (r *ProductRepo) AddOptionPair(ctx context.Context, productID, optionID, valueID int64, name, value string) error {
	const upsertOption = `INSERT INTO app.product_options (id, product_id, name) VALUES ($1,$2,$3)
	                      ON CONFLICT (product_id, name) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, upsertOption, optionID, productID, name); err != nil {
		return err
	}
	const insertValue = `INSERT INTO app.product_option_values (id, option_id, value)
	                     SELECT $1, o.id, $2 FROM app.product_options o WHERE o.product_id=$3 AND o.name=$4
	                     ON CONFLICT (option_id, value) DO NOTHING`
	_, err := r.db.ExecContext(ctx, insertValue, valueID, value, productID, name)
	return err
}

// ListOptionPairs returns the flattened option pairs of a product.
func (r *ProductRepo) ListOptionPairs(ctx context.Context, productID int64) ([]entity.OptionPair, error) {
	const q = `SELECT o.id AS option_id, v.id AS value_id, o.name, v.value
	           FROM app.product_options o
	           JOIN app.product_option_values v ON v.option_id = o.id
	           WHERE o.product_id=$1 ORDER BY o.name, v.value`
	var pairs []entity.OptionPair
	if err := r.db.SelectContext(ctx, &pairs, q, productID); err != nil {
		return nil, err
	}
	return pairs, nil
}

// DeleteValueTx removes one option value row inside the caller's transaction
// and returns affected rows.
func (r *ProductRepo) DeleteValueTx(ctx context.Context, ext sqlx.ExtContext, productID int64, name, value string) (int64, error) {
	const q = `DELETE FROM app.product_option_values v
	           USING app.product_options o
	           WHERE v.option_id = o.id AND o.product_id=$1 AND o.name=$2 AND v.value=$3`
	res, err := ext.ExecContext(ctx, q, productID, name, value)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteEmptyOptionTx removes the option row when its last value is gone,
// inside the caller's transaction.
func (r *ProductRepo) DeleteEmptyOptionTx(ctx context.Context, ext sqlx.ExtContext, productID int64, name string) error {
	const q = `DELETE FROM app.product_options o
	           WHERE o.product_id=$1 AND o.name=$2
	             AND NOT EXISTS (SELECT 1 FROM app.product_option_values v WHERE v.option_id = o.id)`
	_, err := ext.ExecContext(ctx, q, productID, name)
	return err
}
