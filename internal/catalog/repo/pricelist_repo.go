package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arkova/catalog-core/internal/catalog/entity"
)

// PriceListRepo provides data access for price lists and their items.
type PriceListRepo struct {
	db *sqlx.DB
}

func NewPriceListRepo(db *sqlx.DB) *PriceListRepo { return &PriceListRepo{db: db} }

// Create inserts a price list row.
func (r *PriceListRepo) Create(ctx context.Context, pl *entity.PriceList) error {
	const q = `INSERT INTO app.price_lists (id, region_id, name, currency, valid_from, valid_to)
	           VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.ExecContext(ctx, q, pl.ID, pl.RegionID, pl.Name, pl.Currency, pl.ValidFrom, pl.ValidTo)
	return err
}

// GetByID fetches a price list scoped to its region.
func (r *PriceListRepo) GetByID(ctx context.Context, regionID, id int64) (*entity.PriceList, error) {
	const q = `SELECT id, region_id, name, currency, valid_from, valid_to, created_at, updated_at
	           FROM app.price_lists WHERE region_id=$1 AND id=$2`
	var pl entity.PriceList
	if err := r.db.GetContext(ctx, &pl, q, regionID, id); err != nil {
		return nil, err
	}
	return &pl, nil
}

// List returns the price lists of a region.
func (r *PriceListRepo) List(ctx context.Context, regionID int64) ([]entity.PriceList, error) {
	const q = `SELECT id, region_id, name, currency, valid_from, valid_to, created_at, updated_at
	           FROM app.price_lists WHERE region_id=$1 ORDER BY valid_from DESC`
	var pls []entity.PriceList
	if err := r.db.SelectContext(ctx, &pls, q, regionID); err != nil {
		return nil, err
	}
	return pls, nil
}

// UpsertItem sets the price of a product within a list.
func (r *PriceListRepo) UpsertItem(ctx context.Context, item *entity.PriceListItem) error {
	const q = `INSERT INTO app.price_list_items (price_list_id, product_id, price) VALUES ($1,$2,$3)
	           ON CONFLICT (price_list_id, product_id) DO UPDATE SET price=EXCLUDED.price`
	_, err := r.db.ExecContext(ctx, q, item.PriceListID, item.ProductID, item.Price)
	return err
}

// ListItems returns the items of a price list.
func (r *PriceListRepo) ListItems(ctx context.Context, priceListID int64) ([]entity.PriceListItem, error) {
	const q = `SELECT price_list_id, product_id, price FROM app.price_list_items
	           WHERE price_list_id=$1 ORDER BY product_id`
	var items []entity.PriceListItem
	if err := r.db.SelectContext(ctx, &items, q, priceListID); err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteItem removes one item and returns affected rows.
func (r *PriceListRepo) DeleteItem(ctx context.Context, priceListID, productID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM app.price_list_items WHERE price_list_id=$1 AND product_id=$2`, priceListID, productID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResolvePrice returns the price of a product from the newest list active in
// the region at the given instant, or sql.ErrNoRows.
func (r *PriceListRepo) ResolvePrice(ctx context.Context, regionID, productID int64, at time.Time) (*entity.ResolvedPrice, error) {
	const q = `SELECT pl.id AS price_list_id, pl.currency, pli.price
	           FROM app.price_lists pl
	           JOIN app.price_list_items pli ON pli.price_list_id = pl.id
	           WHERE pl.region_id=$1 AND pli.product_id=$2
	             AND pl.valid_from <= $3 AND (pl.valid_to IS NULL OR pl.valid_to > $3)
	           ORDER BY pl.valid_from DESC LIMIT 1`
	var rp entity.ResolvedPrice
	if err := r.db.GetContext(ctx, &rp, q, regionID, productID, at); err != nil {
		return nil, err
	}
	return &rp, nil
}
