package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/catalog/entity"
	"github.com/arkova/catalog-core/internal/event"
)

type capturingBus struct {
	events []event.Params
}

func (b *capturingBus) CreateAndPublishEvent(_ context.Context, p event.Params) (event.Event, error) {
	b.events = append(b.events, p)
	return event.Event{EventName: p.EventName}, nil
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *capturingBus) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxDB := sqlx.NewDb(db, "postgres")
	bus := &capturingBus{}
	return NewService(sqlxDB, bus, zap.NewNop().Sugar()), mock, bus
}

func TestCreateProductValidation(t *testing.T) {
	svc, _, _ := newMockService(t)

	_, err := svc.CreateProduct(context.Background(), &entity.Product{RegionID: 1, Name: "no sku"})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = svc.CreateProduct(context.Background(), &entity.Product{RegionID: 1, SKU: "SKU-1"})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = svc.CreateProduct(context.Background(), &entity.Product{SKU: "SKU-1", Name: "no region"})
	assert.ErrorIs(t, err, ErrInvalidProduct)
}

func TestCreateProductPublishesEvent(t *testing.T) {
	svc, mock, bus := newMockService(t)

	mock.ExpectExec(`INSERT INTO app\.products`).
		WithArgs(sqlmock.AnyArg(), int64(1), "SKU-1", "Widget", "", "active").
		WillReturnResult(sqlmock.NewResult(0, 1))

	p, err := svc.CreateProduct(context.Background(), &entity.Product{RegionID: 1, SKU: "SKU-1", Name: "Widget"})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "active", p.Status)

	require.Len(t, bus.events, 1)
	assert.Equal(t, "product.created", bus.events[0].EventName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProductNotFound(t *testing.T) {
	svc, mock, bus := newMockService(t)

	mock.ExpectExec(`UPDATE app\.products`).
		WithArgs(int64(1), int64(42), "n", "d", "active").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.UpdateProduct(context.Background(), &entity.Product{
		ID: 42, RegionID: 1, Name: "n", Description: "d", Status: "active",
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, bus.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOptionPairCommitsTransaction(t *testing.T) {
	svc, mock, bus := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM app\.product_option_values`).
		WithArgs(int64(7), "color", "red").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM app\.product_options`).
		WithArgs(int64(7), "color").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := svc.DeleteOptionPair(context.Background(), 7, "color", "red")
	require.NoError(t, err)

	require.Len(t, bus.events, 1)
	assert.Equal(t, "product.option_removed", bus.events[0].EventName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOptionPairRollsBackWhenValueMissing(t *testing.T) {
	svc, mock, bus := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM app\.product_option_values`).
		WithArgs(int64(7), "color", "mauve").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := svc.DeleteOptionPair(context.Background(), 7, "color", "mauve")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, bus.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPriceRegionMismatch(t *testing.T) {
	svc, mock, bus := newMockService(t)

	// price list lookup in the wrong region yields no row
	mock.ExpectQuery(`SELECT id, region_id, name, currency, valid_from, valid_to`).
		WithArgs(int64(2), int64(10)).
		WillReturnError(sql.ErrNoRows)

	err := svc.SetPrice(context.Background(), 2, 10, 99, "12.50")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, bus.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPriceUpsertsAndPublishes(t *testing.T) {
	svc, mock, bus := newMockService(t)

	now := time.Now()
	plCols := []string{"id", "region_id", "name", "currency", "valid_from", "valid_to", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT id, region_id, name, currency, valid_from, valid_to`).
		WithArgs(int64(1), int64(10)).
		WillReturnRows(sqlmock.NewRows(plCols).AddRow(int64(10), int64(1), "default", "USD", now, nil, now, now))

	prodCols := []string{"id", "region_id", "sku", "name", "description", "status", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT id, region_id, sku, name, description, status`).
		WithArgs(int64(1), int64(99)).
		WillReturnRows(sqlmock.NewRows(prodCols).AddRow(int64(99), int64(1), "SKU-1", "Widget", "", "active", now, now))

	mock.ExpectExec(`INSERT INTO app\.price_list_items`).
		WithArgs(int64(10), int64(99), "12.50").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.SetPrice(context.Background(), 1, 10, 99, "12.50")
	require.NoError(t, err)

	require.Len(t, bus.events, 1)
	assert.Equal(t, "pricelist.updated", bus.events[0].EventName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePricePicksNewestActiveList(t *testing.T) {
	svc, mock, _ := newMockService(t)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"price_list_id", "currency", "price"}
	mock.ExpectQuery(`SELECT pl\.id AS price_list_id, pl\.currency, pli\.price`).
		WithArgs(int64(1), int64(99), at).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(10), "EUR", "19.90"))

	rp, err := svc.ResolvePrice(context.Background(), 1, 99, at)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rp.PriceListID)
	assert.Equal(t, "EUR", rp.Currency)
	assert.Equal(t, "19.90", rp.Price)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolvePriceNoActiveList(t *testing.T) {
	svc, mock, _ := newMockService(t)

	mock.ExpectQuery(`SELECT pl\.id AS price_list_id`).
		WithArgs(int64(1), int64(99), sqlmock.AnyArg()).
		WillReturnError(sql.ErrNoRows)

	_, err := svc.ResolvePrice(context.Background(), 1, 99, time.Time{})
	assert.ErrorIs(t, err, ErrNoActivePrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePriceListValidation(t *testing.T) {
	svc, _, _ := newMockService(t)

	_, err := svc.CreatePriceList(context.Background(), &entity.PriceList{RegionID: 1})
	assert.Error(t, err)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = svc.CreatePriceList(context.Background(), &entity.PriceList{
		RegionID: 1, Name: "bad window", ValidFrom: from, ValidTo: &to,
	})
	assert.Error(t, err)
}
