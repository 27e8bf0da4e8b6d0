package entity

import "time"

// Region is the tenancy axis; every catalog row belongs to one region.
type Region struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Product is a row in app.products, unique by (region_id, sku).
type Product struct {
	ID          int64     `db:"id" json:"id"`
	RegionID    int64     `db:"region_id" json:"region_id"`
	SKU         string    `db:"sku" json:"sku"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Status      string    `db:"status" json:"status"` // active / discontinued
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OptionPair is one (name, value) pair of a product option, flattened across
// app.product_options and app.product_option_values.
type OptionPair struct {
	OptionID int64  `db:"option_id" json:"option_id"`
	ValueID  int64  `db:"value_id" json:"value_id"`
	Name     string `db:"name" json:"name"`
	Value    string `db:"value" json:"value"`
}

// PriceList is a row in app.price_lists. A list is active at time t when
// valid_from <= t and (valid_to is null or valid_to > t).
type PriceList struct {
	ID        int64      `db:"id" json:"id"`
	RegionID  int64      `db:"region_id" json:"region_id"`
	Name      string     `db:"name" json:"name"`
	Currency  string     `db:"currency" json:"currency"`
	ValidFrom time.Time  `db:"valid_from" json:"valid_from"`
	ValidTo   *time.Time `db:"valid_to" json:"valid_to,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// PriceListItem assigns one product a price within a list.
type PriceListItem struct {
	PriceListID int64  `db:"price_list_id" json:"price_list_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	Price       string `db:"price" json:"price"` // NUMERIC kept as string to avoid float drift
}

// ResolvedPrice is the outcome of price resolution for a product in a region
// at a point in time.
type ResolvedPrice struct {
	PriceListID int64  `db:"price_list_id" json:"price_list_id"`
	Currency    string `db:"currency" json:"currency"`
	Price       string `db:"price" json:"price"`
}
