package service

import (
	"context"
	"testing"

	"geowatch/config"
	"geowatch/internal/apperr"
	"geowatch/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceFor(t *testing.T) {
	cs := NewCartService(newFakeStore(), config.DefaultPricing())

	daily, err := cs.PriceFor(models.CadenceDaily)
	require.NoError(t, err)
	assert.True(t, daily.Equal(decimal.NewFromInt(5)))

	monthly, err := cs.PriceFor(models.CadenceMonthly)
	require.NoError(t, err)
	assert.True(t, monthly.Equal(decimal.NewFromInt(100)))

	yearly, err := cs.PriceFor(models.CadenceYearly)
	require.NoError(t, err)
	assert.True(t, yearly.Equal(decimal.NewFromInt(1000)))

	_, err = cs.PriceFor(models.Cadence("weekly"))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAddToCart(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Email: "owner@example.com"})
	aoi := store.addAOI(models.AOI{UserID: user.ID, Name: "Farm A"})

	cs := NewCartService(store, config.DefaultPricing())

	item, err := cs.AddToCart(context.Background(), user.ID, aoi.ID, models.CadenceMonthly)
	require.NoError(t, err)
	assert.Equal(t, aoi.ID, item.AOIID)
	assert.Equal(t, models.CadenceMonthly, item.Cadence)
	assert.True(t, item.Price.Equal(decimal.NewFromInt(100)))
}

func TestAddToCartReplacesExistingEntry(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Email: "owner@example.com"})
	aoi := store.addAOI(models.AOI{UserID: user.ID, Name: "Farm A"})

	cs := NewCartService(store, config.DefaultPricing())
	ctx := context.Background()

	first, err := cs.AddToCart(ctx, user.ID, aoi.ID, models.CadenceDaily)
	require.NoError(t, err)

	second, err := cs.AddToCart(ctx, user.ID, aoi.ID, models.CadenceYearly)
	require.NoError(t, err)

	// Same row updated, not a second line item.
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Price.Equal(decimal.NewFromInt(1000)))

	items, err := cs.ListItems(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestAddToCartRejectsUnpurchasableAOI(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Email: "owner@example.com"})
	paid := store.addAOI(models.AOI{UserID: user.ID, Name: "Paid", IsPaid: true, Status: models.AOIStatusActive})

	cs := NewCartService(store, config.DefaultPricing())

	_, err := cs.AddToCart(context.Background(), user.ID, paid.ID, models.CadenceDaily)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAddToCartRejectsForeignAOI(t *testing.T) {
	store := newFakeStore()
	owner := store.addUser(models.User{Email: "owner@example.com"})
	other := store.addUser(models.User{Email: "other@example.com"})
	aoi := store.addAOI(models.AOI{UserID: owner.ID, Name: "Farm A"})

	cs := NewCartService(store, config.DefaultPricing())

	_, err := cs.AddToCart(context.Background(), other.ID, aoi.ID, models.CadenceDaily)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveMissingItem(t *testing.T) {
	store := newFakeStore()
	user := store.addUser(models.User{Email: "owner@example.com"})

	cs := NewCartService(store, config.DefaultPricing())

	err := cs.RemoveItem(context.Background(), user.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
