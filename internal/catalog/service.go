// Package catalog implements region-scoped product and price list management.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/catalog/entity"
	catrepo "github.com/arkova/catalog-core/internal/catalog/repo"
	"github.com/arkova/catalog-core/internal/event"
	"github.com/arkova/catalog-core/pkg/utilities"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNoActivePrice  = errors.New("no active price for product")
	ErrInvalidProduct = errors.New("invalid product")
)

// Publisher is the event-bus surface used by the service. Nil disables publishing.
type Publisher interface {
	CreateAndPublishEvent(ctx context.Context, p event.Params) (event.Event, error)
}

// Service orchestrates catalog writes and price resolution.
type Service struct {
	db         *sqlx.DB
	products   *catrepo.ProductRepo
	priceLists *catrepo.PriceListRepo
	bus        Publisher
	logger     *zap.SugaredLogger
}

func NewService(db *sqlx.DB, bus Publisher, logger *zap.SugaredLogger) *Service {
	return &Service{
		db:         db,
		products:   catrepo.NewProductRepo(db),
		priceLists: catrepo.NewPriceListRepo(db),
		bus:        bus,
		logger:     logger,
	}
}

// CreateProduct validates and inserts a product.
func (s *Service) CreateProduct(ctx context.Context, p *entity.Product) (*entity.Product, error) {
	if p.RegionID == 0 || strings.TrimSpace(p.SKU) == "" || strings.TrimSpace(p.Name) == "" {
		return nil, ErrInvalidProduct
	}
	if p.Status == "" {
		p.Status = "active"
	}
	p.ID = utilities.NewSnowflakeID()
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}
	s.publish(ctx, event.Params{
		EventName: "product.created",
		Source:    "catalog.service",
		Payload:   map[string]any{"product_id": p.ID, "region_id": p.RegionID, "sku": p.SKU},
	})
	return p, nil
}

// GetProduct fetches one product with its option pairs.
func (s *Service) GetProduct(ctx context.Context, regionID, id int64) (*entity.Product, []entity.OptionPair, error) {
	p, err := s.products.GetByID(ctx, regionID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	pairs, err := s.products.ListOptionPairs(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, pairs, nil
}

// ListProducts returns products of a region.
func (s *Service) ListProducts(ctx context.Context, regionID int64, limit, offset int) ([]entity.Product, error) {
	return s.products.List(ctx, regionID, limit, offset)
}

// UpdateProduct rewrites the mutable columns of a product.
func (s *Service) UpdateProduct(ctx context.Context, p *entity.Product) error {
	rows, err := s.products.Update(ctx, p)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.publish(ctx, event.Params{
		EventName: "product.updated",
		Source:    "catalog.service",
		Payload:   map[string]any{"product_id": p.ID, "region_id": p.RegionID},
	})
	return nil
}

// AddOptionPair attaches one (name, value) option pair to a product.
func (s *Service) AddOptionPair(ctx context.Context, productID int64, name, value string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(value) == "" {
		return errors.New("option name and value required")
	}
	return s.products.AddOptionPair(ctx, productID, utilities.NewSnowflakeID(), utilities.NewSnowflakeID(), name, value)
}

// DeleteOptionPair removes one (name, value) pair and, when it was the last
// value of that option, the option row itself, both in one transaction.
func (s *Service) DeleteOptionPair(ctx context.Context, productID int64, name, value string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rows, err := s.products.DeleteValueTx(ctx, tx, productID, name, value)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	if err := s.products.DeleteEmptyOptionTx(ctx, tx, productID, name); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	s.publish(ctx, event.Params{
		EventName: "product.option_removed",
		Source:    "catalog.service",
		Payload:   map[string]any{"product_id": productID, "option": name, "value": value},
	})
	return nil
}

// CreatePriceList validates and inserts a price list.
func (s *Service) CreatePriceList(ctx context.Context, pl *entity.PriceList) (*entity.PriceList, error) {
	if pl.RegionID == 0 || strings.TrimSpace(pl.Name) == "" {
		return nil, errors.New("region and name required")
	}
	if pl.Currency == "" {
		pl.Currency = "USD"
	}
	if pl.ValidFrom.IsZero() {
		pl.ValidFrom = time.Now().UTC()
	}
	if pl.ValidTo != nil && !pl.ValidTo.After(pl.ValidFrom) {
		return nil, errors.New("valid_to must be after valid_from")
	}
	pl.ID = utilities.NewSnowflakeID()
	if err := s.priceLists.Create(ctx, pl); err != nil {
		return nil, err
	}
	s.publish(ctx, event.Params{
		EventName: "pricelist.created",
		Source:    "catalog.service",
		Payload:   map[string]any{"price_list_id": pl.ID, "region_id": pl.RegionID},
	})
	return pl, nil
}

// ListPriceLists returns the price lists of a region.
func (s *Service) ListPriceLists(ctx context.Context, regionID int64) ([]entity.PriceList, error) {
	return s.priceLists.List(ctx, regionID)
}

// GetPriceList fetches one price list with its items.
func (s *Service) GetPriceList(ctx context.Context, regionID, id int64) (*entity.PriceList, []entity.PriceListItem, error) {
	pl, err := s.priceLists.GetByID(ctx, regionID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	items, err := s.priceLists.ListItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return pl, items, nil
}

// SetPrice upserts one product price within a list.
func (s *Service) SetPrice(ctx context.Context, regionID, priceListID, productID int64, price string) error {
	// both rows must belong to the same region
	if _, err := s.priceLists.GetByID(ctx, regionID, priceListID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if _, err := s.products.GetByID(ctx, regionID, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if err := s.priceLists.UpsertItem(ctx, &entity.PriceListItem{PriceListID: priceListID, ProductID: productID, Price: price}); err != nil {
		return err
	}
	s.publish(ctx, event.Params{
		EventName: "pricelist.updated",
		Source:    "catalog.service",
		Payload:   map[string]any{"price_list_id": priceListID, "product_id": productID},
	})
	return nil
}

// DeletePrice removes one product price from a list.
func (s *Service) DeletePrice(ctx context.Context, regionID, priceListID, productID int64) error {
	if _, err := s.priceLists.GetByID(ctx, regionID, priceListID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	rows, err := s.priceLists.DeleteItem(ctx, priceListID, productID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	s.publish(ctx, event.Params{
		EventName: "pricelist.updated",
		Source:    "catalog.service",
		Payload:   map[string]any{"price_list_id": priceListID, "product_id": productID, "removed": true},
	})
	return nil
}

// ResolvePrice returns the effective price of a product in a region at the
// given instant (zero time means now).
func (s *Service) ResolvePrice(ctx context.Context, regionID, productID int64, at time.Time) (*entity.ResolvedPrice, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	rp, err := s.priceLists.ResolvePrice(ctx, regionID, productID, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActivePrice
		}
		return nil, err
	}
	return rp, nil
}

func (s *Service) publish(ctx context.Context, p event.Params) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.CreateAndPublishEvent(ctx, p); err != nil {
		s.logger.Warnw("event publish failed", "event", p.EventName, "err", err)
	}
}
